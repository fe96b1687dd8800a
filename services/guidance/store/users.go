// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserStore is the user repository contract. The engine and handlers
// depend on this interface; tests substitute fakes.
type UserStore interface {
	Create(ctx context.Context, user *User) error
	ByEmail(ctx context.Context, email string) (*User, error)
	ByID(ctx context.Context, id uint) (*User, error)
	Count(ctx context.Context) (int64, error)

	// DebitCredits atomically charges amount and returns the new balance.
	// Returns ErrInsufficientCredits (and debits nothing) when the balance
	// is too low. fn, when non-nil, runs inside the same transaction so a
	// session row can be created with the debit (invariant: a session row
	// exists for every debit).
	DebitCredits(ctx context.Context, userID uint, amount int, fn func(tx *gorm.DB) error) (int, error)

	// RefundCredits returns amount to the user's balance. fn, when
	// non-nil, runs inside the same transaction so the session's
	// refund-due marker clears with the credit.
	RefundCredits(ctx context.Context, userID uint, amount int, fn func(tx *gorm.DB) error) (int, error)
}

type gormUserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) UserStore {
	return &gormUserStore{db: db}
}

func (s *gormUserStore) Create(ctx context.Context, user *User) error {
	err := s.db.WithContext(ctx).Create(user).Error
	if err != nil {
		// Unique-index violation on email; pgx surfaces SQLSTATE 23505.
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "23505") {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *gormUserStore) ByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user by email: %w", err)
	}
	return &user, nil
}

func (s *gormUserStore) ByID(ctx context.Context, id uint) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user by id: %w", err)
	}
	return &user, nil
}

func (s *gormUserStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&User{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (s *gormUserStore) DebitCredits(ctx context.Context, userID uint, amount int,
	fn func(tx *gorm.DB) error) (int, error) {

	if amount <= 0 {
		return 0, fmt.Errorf("debit amount must be positive, got %d", amount)
	}

	var newBalance int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user User
		// Row lock so concurrent sessions cannot double-spend.
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&user, userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock user row: %w", err)
		}

		if user.Credits < amount {
			return ErrInsufficientCredits
		}

		newBalance = user.Credits - amount
		if err := tx.Model(&User{}).Where("id = ?", userID).
			Update("credits", newBalance).Error; err != nil {
			return fmt.Errorf("update balance: %w", err)
		}

		if fn != nil {
			return fn(tx)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

func (s *gormUserStore) RefundCredits(ctx context.Context, userID uint, amount int,
	fn func(tx *gorm.DB) error) (int, error) {

	if amount <= 0 {
		return 0, fmt.Errorf("refund amount must be positive, got %d", amount)
	}

	var newBalance int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user User
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&user, userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock user row: %w", err)
		}

		newBalance = user.Credits + amount
		if err := tx.Model(&User{}).Where("id = ?", userID).
			Update("credits", newBalance).Error; err != nil {
			return fmt.Errorf("update balance: %w", err)
		}

		if fn != nil {
			return fn(tx)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}
