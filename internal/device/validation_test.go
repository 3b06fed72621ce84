package device

import (
	"errors"
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	valid := Device{ID: "SW-1", Owner: "alice", Name: "Desk lamp"}

	tests := []struct {
		name    string
		mutate  func(*Device)
		wantErr bool
	}{
		{"valid", func(*Device) {}, false},
		{"empty id", func(d *Device) { d.ID = "" }, true},
		{"long id", func(d *Device) { d.ID = strings.Repeat("x", maxIDLength+1) }, true},
		{"slash in id", func(d *Device) { d.ID = "kitchen/SW-1" }, true},
		{"plus in id", func(d *Device) { d.ID = "SW+1" }, true},
		{"hash in id", func(d *Device) { d.ID = "SW#1" }, true},
		{"empty owner", func(d *Device) { d.Owner = "" }, true},
		{"blank name", func(d *Device) { d.Name = "   " }, true},
		{"long name", func(d *Device) { d.Name = strings.Repeat("n", maxNameLength+1) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid
			tt.mutate(&d)
			err := Validate(d)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidDevice) {
				t.Errorf("error %v does not wrap ErrInvalidDevice", err)
			}
		})
	}
}
