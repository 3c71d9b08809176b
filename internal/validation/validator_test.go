package validation

import (
	"strings"
	"testing"
)

type tierInput struct {
	MinQuantity int    `validate:"required,gte=1"`
	Discount    float64 `validate:"gte=0,lte=100"`
	Unit        string `validate:"required,oneof=buah box karton"`
}

func TestValidateStruct(t *testing.T) {
	if errs := ValidateStruct(tierInput{MinQuantity: 5, Discount: 10, Unit: "buah"}); errs != nil {
		t.Fatalf("expected valid input, got %v", errs)
	}

	errs := ValidateStruct(tierInput{MinQuantity: 0, Discount: 150, Unit: "pallet"})
	if len(errs) != 3 {
		t.Fatalf("expected 3 field errors, got %d: %v", len(errs), errs)
	}

	msg := Describe(errs)
	if !strings.Contains(msg, "MinQuantity") || !strings.Contains(msg, "oneof") {
		t.Fatalf("unexpected description %q", msg)
	}
}
