package lends

import (
	"bytes"
	"context"
	"encoding/base64"
	"log"
	"strings"

	"ASSET-ledger/internal/platform/apierr"
	"ASSET-ledger/internal/platform/blob"
)

type signature struct {
	role        string
	data        []byte
	contentType string
}

// decodeSignature は base64 / data URL (data:image/png;base64,...) を受け付ける
func decodeSignature(role, in string) (signature, error) {
	in = strings.TrimSpace(in)
	if in == "" {
		return signature{}, apierr.ErrInvalid(role + " signature is required")
	}
	ct := "application/octet-stream"
	if strings.HasPrefix(in, "data:") {
		head, body, ok := strings.Cut(in, ",")
		if !ok || !strings.HasSuffix(head, ";base64") {
			return signature{}, apierr.ErrInvalid(role + " signature must be a base64 data URL")
		}
		ct = strings.TrimSuffix(strings.TrimPrefix(head, "data:"), ";base64")
		in = body
	}
	data, err := base64.StdEncoding.DecodeString(in)
	if err != nil {
		return signature{}, apierr.ErrInvalid(role + " signature is not valid base64")
	}
	if len(data) == 0 {
		return signature{}, apierr.ErrInvalid(role + " signature is empty")
	}
	return signature{role: role, data: data, contentType: ct}, nil
}

// uploads は1操作で書いた blob を覚えておき、失敗時に消す
type uploads struct {
	store blob.Store
	keys  []string
}

func (u *uploads) put(ctx context.Context, key string, sig signature, loanID string) error {
	_, err := u.store.Put(ctx, key, bytes.NewReader(sig.data), blob.PutOptions{
		ContentType: sig.contentType,
		Metadata:    map[string]string{"loan_id": loanID, "role": sig.role},
	})
	if err != nil {
		return err
	}
	u.keys = append(u.keys, key)
	return nil
}

func (u *uploads) rollback(ctx context.Context) {
	for _, k := range u.keys {
		if _, err := u.store.Delete(context.WithoutCancel(ctx), k); err != nil {
			log.Printf("[WARN] failed to delete orphan signature %s: %v", k, err)
		}
	}
	u.keys = nil
}
