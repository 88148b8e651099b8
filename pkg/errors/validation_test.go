package errors

import (
	"math"
	"strings"
	"testing"
)

func TestValidatePercent(t *testing.T) {
	tests := []struct {
		name    string
		input   float64
		wantErr bool
	}{
		{"full", 100, false},
		{"half", 50, false},
		{"tiny", 0.001, false},

		{"zero", 0, true},
		{"negative", -5, true},
		{"over", 100.5, true},
		{"nan", math.NaN(), true},
		{"inf", math.Inf(1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePercent(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePercent(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeInvalidParameter) {
				t.Errorf("ValidatePercent(%v) code = %v", tt.input, GetCode(err))
			}
		})
	}
}

func TestValidateCenter(t *testing.T) {
	if err := ValidateCenter(0); err != nil {
		t.Errorf("ValidateCenter(0) error = %v", err)
	}
	if err := ValidateCenter(-3.5); err != nil {
		t.Errorf("ValidateCenter(-3.5) error = %v", err)
	}
	if err := ValidateCenter(math.NaN()); err == nil {
		t.Error("ValidateCenter(NaN) should fail")
	}
}

func TestValidateFilePath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"relative", "data/matrix.tsv", false},
		{"absolute", "/tmp/matrix.csv", false},
		{"spaces", "my data/matrix 1.xlsx", false},

		{"empty", "", true},
		{"blank", "   ", true},
		{"null byte", "foo\x00bar", true},
		{"newline", "foo\nbar", true},
		{"too long", strings.Repeat("a", 5000), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilePath(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFilePath(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateArtifactName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"html", "heatmap_report_abc.html", false},
		{"json", "heatmap_data_abc.json", false},

		{"empty", "", true},
		{"slash", "a/b.html", true},
		{"backslash", "a\\b.html", true},
		{"dotdot", "..", true},
		{"hidden", ".staging", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateArtifactName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateArtifactName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
