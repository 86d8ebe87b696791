package catalog

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/commentgig/backend/internal/models"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	top, ok := c.Template("top-comment")
	if !ok {
		t.Fatal("top-comment missing from default catalog")
	}
	if top.UnitPrice.String() != "3" {
		t.Errorf("top-comment price = %s, want 3", top.UnitPrice)
	}
	if !top.Requires(models.ProofScreenshot) || !top.Requires(models.ProofLink) {
		t.Errorf("top-comment should require screenshot and link, got %v", top.RequiredProofTypes)
	}
	if len(c.List()) != 5 {
		t.Errorf("List() len = %d, want 5", len(c.List()))
	}
}

func TestTemplateReturnsCopy(t *testing.T) {
	c, _ := Default()
	tpl, _ := c.Template("top-comment")
	tpl.RequiredProofTypes[0] = "tampered"
	again, _ := c.Template("top-comment")
	if again.RequiredProofTypes[0] == "tampered" {
		t.Fatal("catalog template was mutated through a returned copy")
	}
}

func TestParseRejectsBadCatalogs(t *testing.T) {
	cases := map[string]string{
		"missing id":     "templates:\n  - kind: comment\n    unit_price: \"1\"\n",
		"bad kind":       "templates:\n  - id: a\n    kind: dance\n    unit_price: \"1\"\n",
		"bad price":      "templates:\n  - id: a\n    kind: comment\n    unit_price: abc\n",
		"negative price": "templates:\n  - id: a\n    kind: comment\n    unit_price: \"-1\"\n",
		"duplicate": "templates:\n  - id: a\n    kind: comment\n    unit_price: \"1\"\n" +
			"  - id: a\n    kind: comment\n    unit_price: \"1\"\n",
		"bad proof type": "templates:\n  - id: a\n    kind: comment\n    unit_price: \"1\"\n    required_proof_types: [video]\n",
		"bad schema":     "templates:\n  - id: a\n    kind: comment\n    unit_price: \"1\"\n    proof_schema: '{\"type\": '\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(strings.NewReader(doc)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestValidateProof(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	cases := []struct {
		name     string
		template string
		proof    models.Proof
		wantErr  error
	}{
		{"complete comment proof", "top-comment", models.Proof{ScreenshotRef: "uploads/a.png", ReviewLink: "https://v.example.com/123"}, nil},
		{"missing screenshot", "top-comment", models.Proof{ReviewLink: "https://v.example.com/123"}, models.ErrIncompleteProof},
		{"missing link", "top-comment", models.Proof{ScreenshotRef: "uploads/a.png"}, models.ErrIncompleteProof},
		{"relative link", "top-comment", models.Proof{ScreenshotRef: "a.png", ReviewLink: "/video/123"}, models.ErrIncompleteProof},
		{"link only template", "video-send-push", models.Proof{ReviewLink: "http://v.example.com/9"}, nil},
		{"unknown template", "nope", models.Proof{}, models.ErrInvalidTemplate},
		{"rental without metadata", "account-rental", models.Proof{ScreenshotRef: "a.png"}, models.ErrIncompleteProof},
		{"rental with metadata", "account-rental", models.Proof{
			ScreenshotRef: "a.png",
			Metadata:      json.RawMessage(`{"account_handle":"@gig","rental_days":3}`),
		}, nil},
		{"rental schema violation", "account-rental", models.Proof{
			ScreenshotRef: "a.png",
			Metadata:      json.RawMessage(`{"account_handle":"@gig","rental_days":90}`),
		}, models.ErrIncompleteProof},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := c.ValidateProof(tc.template, tc.proof)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if !errors.Is(err, models.ErrValidation) {
				t.Errorf("err = %v should be a validation error", err)
			}
		})
	}
}
