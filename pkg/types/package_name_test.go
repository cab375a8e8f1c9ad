// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"testing"
)

func TestPackageName_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    PackageName
		wantErr bool
	}{
		{"left-pad", false},
		{"@types/node", false},
		{"@babel/core", false},
		{"lodash.merge", false},
		{"", true},
		{"Uppercase", true},
		{"has space", true},
		{"@scope", true},
		{".hidden", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.name), func(t *testing.T) {
			t.Parallel()
			err := tt.name.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("PackageName(%q).Validate() error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidPackageName) {
				t.Errorf("error should wrap ErrInvalidPackageName, got: %v", err)
			}
		})
	}
}

func TestPackageName_Mangling(t *testing.T) {
	t.Parallel()

	tests := []struct {
		impl  PackageName
		types PackageName
	}{
		{"react", "@types/react"},
		{"@babel/core", "@types/babel__core"},
		{"lodash.merge", "@types/lodash.merge"},
	}

	for _, tt := range tests {
		t.Run(string(tt.impl), func(t *testing.T) {
			t.Parallel()
			if got := tt.impl.TypesPackage(); got != tt.types {
				t.Errorf("TypesPackage() = %q, want %q", got, tt.types)
			}
			if got := tt.types.ImplementationPackage(); got != tt.impl {
				t.Errorf("ImplementationPackage() = %q, want %q", got, tt.impl)
			}
			if !tt.types.IsTypesPackage() || tt.impl.IsTypesPackage() {
				t.Error("IsTypesPackage() misclassified")
			}
		})
	}
}
