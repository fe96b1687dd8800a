// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cfg

// MockLoader returns a fixed in-memory configuration for tests.
type MockLoader struct{}

func NewMockLoader() (*MockLoader, error) {
	return &MockLoader{}, nil
}

func (ml *MockLoader) Load() (*Config, error) {
	return &Config{
		App: App{
			Name:    "jyotiflow",
			Version: "0.0.1",
			Env:     "test",
		},
		HTTP: HTTP{
			Host: "127.0.0.1",
			Port: "8080",
		},
		Auth: Auth{
			JWTSecret:        "test-secret-not-for-production",
			Issuer:           "jyotiflow",
			Audience:         "jyotiflow-api",
			AccessTTLMinutes: 15,
			RefreshTTLHours:  168,
			BcryptCost:       4,
		},
		Postgres: Postgres{
			Host:                  "127.0.0.1",
			Port:                  "5432",
			Username:              "jyotiflow",
			Password:              "jyotiflow",
			Database:              "jyotiflow_test",
			SSLMode:               "disable",
			MaxIdleConnection:     10,
			MaxOpenConnection:     100,
			MaxLifeTimeConnection: 3600,
		},
		Kafka: Kafka{
			Brokers:      []string{"127.0.0.1:9092"},
			SessionTopic: "jyotiflow.sessions",
			GroupID:      "jyotiflow-analytics",
		},
		Cache: Cache{
			InMemory:   true,
			TTLMinutes: 60,
		},
		Artifacts: Artifacts{
			Backend:   "local",
			LocalRoot: "/tmp/jyotiflow-artifacts",
		},
		OpenAI: OpenAI{
			Model: "gpt-4o-mini",
		},
		Prokerala: Prokerala{
			BaseURL:    "https://api.prokerala.com",
			RatePerSec: 5,
			Burst:      5,
		},
		DID: DID{
			BaseURL:         "https://api.d-id.com",
			PollSeconds:     2,
			DeadlineMinutes: 5,
		},
		ElevenLabs: ElevenLabs{
			BaseURL: "https://api.elevenlabs.io",
			VoiceID: "test-voice",
		},
		Agora: Agora{
			AppID:          "970CA35de60c44645bbae8a215061b33",
			AppCertificate: "5CFd2fd1755d40ecb72977518be15d3b",
			TokenTTLHours:  24,
		},
		Credits: Credits{
			StarterGrant: 5,
			Prices: map[string]int{
				"birth_chart":       2,
				"astrology_reading": 5,
				"compatibility":     5,
				"daily_horoscope":   1,
				"default":           5,
			},
		},
		Cleanup: Cleanup{
			IntervalMinutes:   60,
			SessionBatchSize:  100,
			PendingTTLMinutes: 30,
		},
		Prompts: Prompts{
			PersonaFile: "cfg/yaml/personas.yaml",
		},
	}, nil
}
