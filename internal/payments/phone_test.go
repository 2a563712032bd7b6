package payments

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "0712345678", want: "254712345678"},
		{in: "254712345678", want: "254712345678"},
		{in: "+254712345678", want: "254712345678"},
		{in: "712345678", want: "254712345678"},
		{in: " 0712345678 ", want: "254712345678"},
		{in: "", wantErr: true},
		{in: "07-12345678", wantErr: true},
		{in: "071234", wantErr: true},
	}

	for _, tt := range tests {
		got, err := NormalizePhone(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		assert.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}
