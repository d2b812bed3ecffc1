package awsauth

import (
	"encoding/json"
	"fmt"

	"github.com/snapgate/snapgate/pkg/domain"
)

const (
	// EncryptedExtraKey is the recognized key inside the encrypted
	// extra blob. Unrecognized keys round-trip untouched.
	EncryptedExtraKey = "aws_iam"

	// SecretMask replaces sensitive fields on export.
	SecretMask = "XXXXXXXXXX"
)

var sensitiveIAMFields = []string{"role_arn", "external_id"}

// ParseIAMConfig reads the aws_iam block out of an encrypted extra
// blob. ok is false when the blob is empty or carries no aws_iam key.
func ParseIAMConfig(encryptedExtra string) (cfg domain.IAMConfig, ok bool, err error) {
	if encryptedExtra == "" {
		return domain.IAMConfig{}, false, nil
	}

	var extra map[string]json.RawMessage
	if err := json.Unmarshal([]byte(encryptedExtra), &extra); err != nil {
		return domain.IAMConfig{}, false, fmt.Errorf("could not parse encrypted extra: %w", err)
	}

	raw, found := extra[EncryptedExtraKey]
	if !found {
		return domain.IAMConfig{}, false, nil
	}

	if err := json.Unmarshal(raw, &cfg); err != nil {
		return domain.IAMConfig{}, false, fmt.Errorf("could not parse %s block: %w", EncryptedExtraKey, err)
	}

	return cfg, true, nil
}

// MaskEncryptedExtra replaces $.aws_iam.role_arn and
// $.aws_iam.external_id with SecretMask. All other fields, including
// unrecognized top-level keys, survive unchanged. Masking is
// idempotent.
func MaskEncryptedExtra(encryptedExtra string) (string, error) {
	if encryptedExtra == "" {
		return encryptedExtra, nil
	}

	var extra map[string]any
	if err := json.Unmarshal([]byte(encryptedExtra), &extra); err != nil {
		return "", fmt.Errorf("could not parse encrypted extra: %w", err)
	}

	iam, ok := extra[EncryptedExtraKey].(map[string]any)
	if !ok {
		return encryptedExtra, nil
	}

	for _, field := range sensitiveIAMFields {
		if _, present := iam[field]; present {
			iam[field] = SecretMask
		}
	}

	out, err := json.Marshal(extra)
	if err != nil {
		return "", fmt.Errorf("could not serialize masked extra: %w", err)
	}
	return string(out), nil
}

// UnmaskEncryptedExtra restores masked sensitive fields in new from the
// previously stored old blob, so a round-trip through the export
// surface does not wipe them.
func UnmaskEncryptedExtra(newExtra, oldExtra string) (string, error) {
	if newExtra == "" || oldExtra == "" {
		return newExtra, nil
	}

	var updated map[string]any
	if err := json.Unmarshal([]byte(newExtra), &updated); err != nil {
		return "", fmt.Errorf("could not parse encrypted extra: %w", err)
	}
	var previous map[string]any
	if err := json.Unmarshal([]byte(oldExtra), &previous); err != nil {
		return "", fmt.Errorf("could not parse stored encrypted extra: %w", err)
	}

	updatedIAM, ok := updated[EncryptedExtraKey].(map[string]any)
	if !ok {
		return newExtra, nil
	}
	previousIAM, ok := previous[EncryptedExtraKey].(map[string]any)
	if !ok {
		return newExtra, nil
	}

	for _, field := range sensitiveIAMFields {
		if updatedIAM[field] == SecretMask {
			if prev, present := previousIAM[field]; present {
				updatedIAM[field] = prev
			}
		}
	}

	out, err := json.Marshal(updated)
	if err != nil {
		return "", fmt.Errorf("could not serialize encrypted extra: %w", err)
	}
	return string(out), nil
}
