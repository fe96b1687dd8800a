// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package media

import (
	"bytes"
	"compress/zlib"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// Agora AccessToken2 ("007") builder for RTC join tokens. Live guidance
// sessions hand the client a short-lived token scoped to one channel and
// uid; the app certificate never leaves the server.

const (
	agoraTokenVersion = "007"

	serviceTypeRtc uint16 = 1

	// RTC privilege ids.
	PrivilegeJoinChannel    uint16 = 1
	PrivilegePublishAudio   uint16 = 2
	PrivilegePublishVideo   uint16 = 3
	PrivilegePublishDataStr uint16 = 4
)

// AgoraTokenBuilder issues RTC tokens for one app id/certificate pair.
type AgoraTokenBuilder struct {
	appID   string
	appCert string

	// overridable for deterministic tests
	now  func() time.Time
	salt func() uint32
}

func NewAgoraTokenBuilder(appID, appCert string) (*AgoraTokenBuilder, error) {
	if appID == "" || appCert == "" {
		return nil, fmt.Errorf("agora app id and certificate are required")
	}
	return &AgoraTokenBuilder{
		appID:   appID,
		appCert: appCert,
		now:     time.Now,
		salt:    randomSalt,
	}, nil
}

// BuildRTCToken returns a publisher token for channel/uid valid for ttl.
// uid "0" (or empty) authorizes any uid, per the upstream convention.
func (b *AgoraTokenBuilder) BuildRTCToken(channel, uid string, ttl time.Duration) (string, error) {
	if channel == "" {
		return "", fmt.Errorf("channel name is required")
	}
	if uid == "" {
		uid = "0"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	issueTs := uint32(b.now().Unix())
	expire := uint32(ttl / time.Second)
	salt := b.salt()

	privileges := map[uint16]uint32{
		PrivilegeJoinChannel:    expire,
		PrivilegePublishAudio:   expire,
		PrivilegePublishVideo:   expire,
		PrivilegePublishDataStr: expire,
	}

	var data bytes.Buffer
	packString(&data, b.appID)
	packUint32(&data, issueTs)
	packUint32(&data, expire)
	packUint32(&data, salt)
	packUint16(&data, 1) // service count
	packRtcService(&data, channel, uid, privileges)

	// Two-stage signing key: certificate keyed by issue time, then salt.
	signing := hmacSum(uint32Bytes(issueTs), []byte(b.appCert))
	signing = hmacSum(uint32Bytes(salt), signing)
	signature := hmacSum(signing, data.Bytes())

	var packed bytes.Buffer
	packBytes(&packed, signature)
	packed.Write(data.Bytes())

	compressed, err := deflate(packed.Bytes())
	if err != nil {
		return "", fmt.Errorf("compress token: %w", err)
	}
	return agoraTokenVersion + base64.StdEncoding.EncodeToString(compressed), nil
}

func packRtcService(buf *bytes.Buffer, channel, uid string, privileges map[uint16]uint32) {
	packUint16(buf, serviceTypeRtc)
	packUint16(buf, uint16(len(privileges)))
	// Privilege ids are written in ascending order so output is stable.
	for _, id := range []uint16{PrivilegeJoinChannel, PrivilegePublishAudio,
		PrivilegePublishVideo, PrivilegePublishDataStr} {
		if exp, ok := privileges[id]; ok {
			packUint16(buf, id)
			packUint32(buf, exp)
		}
	}
	packString(buf, channel)
	packString(buf, uid)
}

func hmacSum(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func packUint16(buf *bytes.Buffer, v uint16) {
	_ = binary.Write(buf, binary.LittleEndian, v)
}

func packUint32(buf *bytes.Buffer, v uint32) {
	_ = binary.Write(buf, binary.LittleEndian, v)
}

func uint32Bytes(v uint32) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, v)
	return out
}

func packString(buf *bytes.Buffer, s string) {
	packBytes(buf, []byte(s))
}

func packBytes(buf *bytes.Buffer, b []byte) {
	packUint16(buf, uint16(len(b)))
	buf.Write(b)
}

func deflate(data []byte) ([]byte, error) {
	var out bytes.Buffer
	w := zlib.NewWriter(&out)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func randomSalt() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		// Fall back to the clock; salt only needs uniqueness, not secrecy.
		return uint32(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint32(b[:])
}

// parsedToken is the decoded view used for verification and tests.
type parsedToken struct {
	Signature []byte
	AppID     string
	IssueTs   uint32
	Expire    uint32
	Salt      uint32
	Channel   string
	UID       string
}

// parseRTCToken decodes a token produced by BuildRTCToken.
func parseRTCToken(token string) (*parsedToken, error) {
	if len(token) < len(agoraTokenVersion) || token[:3] != agoraTokenVersion {
		return nil, fmt.Errorf("unsupported token version")
	}
	raw, err := base64.StdEncoding.DecodeString(token[3:])
	if err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	data, err := inflate(raw)
	if err != nil {
		return nil, fmt.Errorf("decompress token: %w", err)
	}

	r := bytes.NewReader(data)
	out := &parsedToken{}
	if out.Signature, err = readBytes(r); err != nil {
		return nil, err
	}
	if out.AppID, err = readString(r); err != nil {
		return nil, err
	}
	if err = binary.Read(r, binary.LittleEndian, &out.IssueTs); err != nil {
		return nil, err
	}
	if err = binary.Read(r, binary.LittleEndian, &out.Expire); err != nil {
		return nil, err
	}
	if err = binary.Read(r, binary.LittleEndian, &out.Salt); err != nil {
		return nil, err
	}

	var serviceCount uint16
	if err = binary.Read(r, binary.LittleEndian, &serviceCount); err != nil {
		return nil, err
	}
	var serviceType uint16
	if err = binary.Read(r, binary.LittleEndian, &serviceType); err != nil {
		return nil, err
	}
	var privCount uint16
	if err = binary.Read(r, binary.LittleEndian, &privCount); err != nil {
		return nil, err
	}
	for i := uint16(0); i < privCount; i++ {
		var id uint16
		var exp uint32
		if err = binary.Read(r, binary.LittleEndian, &id); err != nil {
			return nil, err
		}
		if err = binary.Read(r, binary.LittleEndian, &exp); err != nil {
			return nil, err
		}
	}
	if out.Channel, err = readString(r); err != nil {
		return nil, err
	}
	if out.UID, err = readString(r); err != nil {
		return nil, err
	}
	return out, nil
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
