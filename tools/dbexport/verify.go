package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gorm.io/gorm"

	"github.com/oncoderma/oncoderma-go/internal/datastore"
)

// sampleSize is the number of random rows compared field by field.
const sampleSize = 5

// Verifier performs post-migration verification.
type Verifier struct {
	sourceDB *gorm.DB
	targetDB *gorm.DB
	out      io.Writer
}

// NewVerifier creates a new Verifier.
func NewVerifier(sourceDB, targetDB *gorm.DB, out io.Writer) *Verifier {
	return &Verifier{sourceDB: sourceDB, targetDB: targetDB, out: out}
}

// Verify compares row counts and a random sample of users and predictions.
func (v *Verifier) Verify(ctx context.Context) error {
	if err := v.verifyCounts(ctx); err != nil {
		return fmt.Errorf("count verification failed: %w", err)
	}
	if err := v.sampleUsers(ctx, sampleSize); err != nil {
		return fmt.Errorf("users sampling failed: %w", err)
	}
	if err := v.samplePredictions(ctx, sampleSize); err != nil {
		return fmt.Errorf("predictions sampling failed: %w", err)
	}
	return nil
}

func (v *Verifier) verifyCounts(ctx context.Context) error {
	fmt.Fprintln(v.out, "\nVerifying record counts...")
	fmt.Fprintf(v.out, "%-25s %12s %12s %8s\n", "Table", "Source", "Target", "Match")
	fmt.Fprintln(v.out, strings.Repeat("-", 60))

	allMatch := true
	for _, t := range tables {
		var sourceCount, targetCount int64
		if err := v.sourceDB.WithContext(ctx).Model(t.model).Count(&sourceCount).Error; err != nil {
			return fmt.Errorf("failed to count source %s: %w", t.name, err)
		}
		if err := v.targetDB.WithContext(ctx).Model(t.model).Count(&targetCount).Error; err != nil {
			return fmt.Errorf("failed to count target %s: %w", t.name, err)
		}

		match := "✓"
		if sourceCount != targetCount {
			match = "✗"
			allMatch = false
		}
		fmt.Fprintf(v.out, "%-25s %12d %12d %8s\n", t.name, sourceCount, targetCount, match)
	}

	if !allMatch {
		return fmt.Errorf("record counts do not match")
	}
	return nil
}

func (v *Verifier) sampleUsers(ctx context.Context, count int) error {
	var sourceUsers []datastore.User
	if err := v.sourceDB.WithContext(ctx).Order("RANDOM()").Limit(count).Find(&sourceUsers).Error; err != nil {
		return fmt.Errorf("failed to fetch source samples: %w", err)
	}

	for i := range sourceUsers {
		src := &sourceUsers[i]
		var target datastore.User
		if err := v.targetDB.WithContext(ctx).First(&target, src.ID).Error; err != nil {
			return fmt.Errorf("user ID %d not found in target: %w", src.ID, err)
		}
		if src.Username != target.Username {
			return fmt.Errorf("user ID %d: Username mismatch (%s vs %s)", src.ID, src.Username, target.Username)
		}
		if src.PasswordHash != target.PasswordHash {
			return fmt.Errorf("user ID %d: PasswordHash mismatch", src.ID)
		}
	}

	fmt.Fprintf(v.out, "  Users: %d samples verified\n", len(sourceUsers))
	return nil
}

func (v *Verifier) samplePredictions(ctx context.Context, count int) error {
	var sourcePredictions []datastore.Prediction
	if err := v.sourceDB.WithContext(ctx).Order("RANDOM()").Limit(count).Find(&sourcePredictions).Error; err != nil {
		return fmt.Errorf("failed to fetch source samples: %w", err)
	}

	for i := range sourcePredictions {
		src := &sourcePredictions[i]
		var target datastore.Prediction
		if err := v.targetDB.WithContext(ctx).First(&target, src.ID).Error; err != nil {
			return fmt.Errorf("prediction ID %d not found in target: %w", src.ID, err)
		}
		if src.UserID != target.UserID {
			return fmt.Errorf("prediction ID %d: UserID mismatch (%d vs %d)", src.ID, src.UserID, target.UserID)
		}
		if src.Result != target.Result {
			return fmt.Errorf("prediction ID %d: Result mismatch (%s vs %s)", src.ID, src.Result, target.Result)
		}
		if src.Confidence != target.Confidence {
			return fmt.Errorf("prediction ID %d: Confidence mismatch (%f vs %f)", src.ID, src.Confidence, target.Confidence)
		}
		if src.ImageFile != target.ImageFile {
			return fmt.Errorf("prediction ID %d: ImageFile mismatch (%s vs %s)", src.ID, src.ImageFile, target.ImageFile)
		}
	}

	fmt.Fprintf(v.out, "  Predictions: %d samples verified\n", len(sourcePredictions))
	return nil
}
