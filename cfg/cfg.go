// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cfg holds the typed configuration for every JyotiFlow component
// and the Loader abstraction used to populate it.
package cfg

type (
	App struct {
		Name    string
		Version string
		Env     string
	}

	HTTP struct {
		Host string
		Port string
	}

	// Auth configures token issuing and password hashing.
	Auth struct {
		JWTSecret        string
		Issuer           string
		Audience         string
		AccessTTLMinutes int
		RefreshTTLHours  int
		BcryptCost       int
	}

	Postgres struct {
		Host                  string
		Port                  string
		Username              string
		Password              string
		Database              string
		SSLMode               string
		MaxIdleConnection     int
		MaxOpenConnection     int
		MaxLifeTimeConnection int
	}

	Kafka struct {
		Brokers      []string
		SessionTopic string
		GroupID      string
	}

	Influx struct {
		URL    string
		Token  string
		Org    string
		Bucket string
	}

	Cache struct {
		Path       string
		InMemory   bool
		TTLMinutes int
	}

	// Artifacts selects where generated audio/video lands.
	// Backend is "local" or "gcs".
	Artifacts struct {
		Backend   string
		LocalRoot string
		GCSBucket string
	}

	OpenAI struct {
		APIKey string
		Model  string
	}

	Prokerala struct {
		BaseURL      string
		ClientID     string
		ClientSecret string
		RatePerSec   float64
		Burst        int
	}

	DID struct {
		BaseURL          string
		APIKey           string
		PresenterURL     string
		PollSeconds      int
		DeadlineMinutes  int
	}

	ElevenLabs struct {
		BaseURL string
		APIKey  string
		VoiceID string
	}

	Agora struct {
		AppID          string
		AppCertificate string
		TokenTTLHours  int
	}

	// Credits configures the credit gate on sessions. Prices are keyed by
	// service type (birth_chart, astrology_reading, compatibility,
	// daily_horoscope).
	Credits struct {
		StarterGrant int
		Prices       map[string]int
	}

	Cleanup struct {
		IntervalMinutes   int
		SessionBatchSize  int
		PendingTTLMinutes int
	}

	Telemetry struct {
		OTLPEndpoint string
	}

	Prompts struct {
		PersonaFile string
	}
)

type Config struct {
	App        App
	HTTP       HTTP
	Auth       Auth
	Postgres   Postgres
	Kafka      Kafka
	Influx     Influx
	Cache      Cache
	Artifacts  Artifacts
	OpenAI     OpenAI
	Prokerala  Prokerala
	DID        DID
	ElevenLabs ElevenLabs
	Agora      Agora
	Credits    Credits
	Cleanup    Cleanup
	Telemetry  Telemetry
	Prompts    Prompts
}

// Price returns the credit price for a service type, falling back to the
// "default" entry when the type has no explicit price.
func (c *Config) Price(serviceType string) int {
	if p, ok := c.Credits.Prices[serviceType]; ok {
		return p
	}
	return c.Credits.Prices["default"]
}
