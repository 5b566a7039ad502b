package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewSugaredLogger(t *testing.T) {
	tests := []struct {
		name      string
		verbose   bool
		level     string
		wantLevel zapcore.Level
		wantErr   bool
	}{
		{name: "production default", wantLevel: zapcore.InfoLevel},
		{name: "development default", verbose: true, wantLevel: zapcore.DebugLevel},
		{name: "level override", level: "warn", wantLevel: zapcore.WarnLevel},
		{name: "invalid level", level: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := NewSugaredLogger(tt.verbose, tt.level)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantLevel, log.Level())
		})
	}
}
