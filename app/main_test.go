package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/stankin/antispam/app/bot"
	"github.com/stankin/antispam/app/detector"
)

func TestMakeSpamLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := makeSpamLogger(buf)

	msg := bot.Message{
		ID:   10,
		Text: "spam line one\nline two",
		From: bot.User{ID: 555, Username: "spammer", DisplayName: "Spam Mer"},
	}
	res := detector.Result{Verdict: detector.Spam, Sure: true,
		Prediction: detector.Prediction{Spam: true, Probs: [2]float64{0.01, 0.99}}}
	logger.Save(msg, res)

	var entry struct {
		TS          string  `json:"ts"`
		DisplayName string  `json:"display_name"`
		UserName    string  `json:"user_name"`
		UserID      int64   `json:"user_id"`
		Verdict     string  `json:"verdict"`
		Confidence  float64 `json:"confidence"`
		Text        string  `json:"text"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotEmpty(t, entry.TS)
	assert.Equal(t, "Spam Mer", entry.DisplayName)
	assert.Equal(t, "spammer", entry.UserName)
	assert.Equal(t, int64(555), entry.UserID)
	assert.Equal(t, "spam", entry.Verdict)
	assert.InDelta(t, 0.99, entry.Confidence, 0.0001)
	assert.Equal(t, "spam line one line two", entry.Text)
}

func TestMakeSpamLogWriter(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		opts := options{}
		opts.Logger.Enabled = false
		wr, err := makeSpamLogWriter(opts)
		require.NoError(t, err)
		assert.IsType(t, nopWriteCloser{}, wr)
		assert.NoError(t, wr.Close())
	})

	t.Run("enabled", func(t *testing.T) {
		opts := options{}
		opts.Logger.Enabled = true
		opts.Logger.FileName = filepath.Join(os.TempDir(), "antispam-test.log")
		opts.Logger.MaxSize = "10M"
		opts.Logger.MaxBackups = 5
		wr, err := makeSpamLogWriter(opts)
		require.NoError(t, err)
		lj, ok := wr.(*lumberjack.Logger)
		require.True(t, ok)
		assert.Equal(t, 10, lj.MaxSize)
		assert.Equal(t, 5, lj.MaxBackups)
		assert.NoError(t, wr.Close())
	})

	t.Run("bad size", func(t *testing.T) {
		opts := options{}
		opts.Logger.Enabled = true
		opts.Logger.MaxSize = "f500"
		_, err := makeSpamLogWriter(opts)
		assert.Error(t, err)
	})
}

func TestSizeParse(t *testing.T) {
	tbl := []struct {
		inp  string
		res  uint64
		fail bool
	}{
		{"1000", 1000, false},
		{"1k", 1024, false},
		{"1K", 1024, false},
		{"10m", 10 * 1024 * 1024, false},
		{"2G", 2 * 1024 * 1024 * 1024, false},
		{"1T", 1024 * 1024 * 1024 * 1024, false},
		{"", 0, true},
		{"unparsable", 0, true},
		{"xk", 0, true},
	}
	for _, tt := range tbl {
		t.Run(tt.inp, func(t *testing.T) {
			res, err := sizeParse(tt.inp)
			if tt.fail {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.res, res)
		})
	}
}

func TestMakeDetector(t *testing.T) {
	opts := options{}
	opts.Model.Dir = "models"
	opts.Model.Name = "test-model"

	t.Run("without openai", func(t *testing.T) {
		det := makeDetector(t.Context(), opts)
		assert.NotNil(t, det)
	})

	t.Run("with openai", func(t *testing.T) {
		o := opts
		o.OpenAI.Token = "sk-test"
		o.OpenAI.Model = "gpt-4o-mini"
		det := makeDetector(t.Context(), o)
		assert.NotNil(t, det)
	})
}
