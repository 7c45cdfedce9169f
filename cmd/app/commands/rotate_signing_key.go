package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	authUseCase "github.com/mesaops/perimeter/internal/auth/usecase"
)

// RunRotateSigningKey retires the active signing key and activates a fresh one.
// Credentials signed by the retired key remain verifiable until its grace
// window ends, so rotation never invalidates live sessions.
//
// Requirements: Database must be migrated and accessible, KMS_KEY_URI must be set.
func RunRotateSigningKey(
	ctx context.Context,
	tokenUseCase authUseCase.TokenUseCase,
	logger *slog.Logger,
	w io.Writer,
	format string,
) error {
	logger.Info("rotating signing key")

	if err := tokenUseCase.RotateSigningKey(ctx); err != nil {
		return fmt.Errorf("failed to rotate signing key: %w", err)
	}

	if format == "json" {
		outputRotateJSON(w)
	} else {
		fmt.Fprintln(w, "Signing key rotated; the previous key stays verifiable through its grace window")
	}

	logger.Info("signing key rotation completed")
	return nil
}

// outputRotateJSON outputs the result in JSON format for machine consumption.
func outputRotateJSON(w io.Writer) {
	result := map[string]interface{}{
		"rotated": true,
	}

	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "failed to marshal JSON: %v\n", err)
		return
	}

	fmt.Fprintln(w, string(jsonBytes))
}
