package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainProgram = "lpsuspend/program/v1"
)

// hashWithDomain computes SHA-256 with domain separation:
// SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ProgramHash identifies a Program by its packed words and labels.
// Two Programs with the same hash drive the hardware identically.
func ProgramHash(p *Program) (string, error) {
	words := Encode(p)
	wordList := make([]any, len(words))
	for i, w := range words {
		wordList[i] = w
	}
	labels := p.Labels()
	if labels == nil {
		labels = []string{}
	}
	canonical, err := MarshalCanonical(map[string]any{
		"words":  wordList,
		"labels": labels,
	})
	if err != nil {
		return "", fmt.Errorf("ProgramHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainProgram, canonical), nil
}

// MustProgramHash is like ProgramHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustProgramHash(p *Program) string {
	h, err := ProgramHash(p)
	if err != nil {
		panic(err)
	}
	return h
}
