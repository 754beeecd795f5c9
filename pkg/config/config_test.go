package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	require.NotNil(t, cfg)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "docx", cfg.Export.Format)
	require.NoError(t, cfg.Export.Validate())
	assert.Equal(t, 4, cfg.Export.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Export.JobTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Export.BatchTimeout)
	assert.Equal(t, "plan-export.events", cfg.Notify.Channel)
	assert.Nil(t, cfg.Export.LogoPaths)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("EXPORT_FORMAT", "DOCX")
	v.Set("EXPORT_CONCURRENCY", 0)
	v.Set("EXPORT_LOGO_PATHS", " a.png, ,b.png ")
	v.Set("EXPORT_JOB_TIMEOUT", "not-a-duration")

	cfg := fromViper(v)
	assert.Equal(t, "docx", cfg.Export.Format)
	assert.Equal(t, 4, cfg.Export.Concurrency)
	assert.Equal(t, []string{"a.png", "b.png"}, cfg.Export.LogoPaths)
	assert.Equal(t, 30*time.Second, cfg.Export.JobTimeout)
}

func TestExportConfigValidate(t *testing.T) {
	assert.NoError(t, ExportConfig{Format: "docx"}.Validate())
	assert.NoError(t, ExportConfig{Format: "pdf", FontPath: "/fonts/NotoSansSC.ttf"}.Validate())

	err := ExportConfig{Format: "pdf"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EXPORT_FONT_PATH")

	assert.Error(t, ExportConfig{Format: "odt"}.Validate())
	assert.Error(t, ExportConfig{}.Validate())
}
