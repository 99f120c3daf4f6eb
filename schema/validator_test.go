package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsValidator(t *testing.T) {
	v, err := NewSettingsValidator()
	require.NoError(t, err)

	valid := map[string]interface{}{
		"extensions": []string{".flac"},
		"filetype_settings": []map[string]interface{}{
			{"extension": ".flac", "cmd": "/bin/echo", "parallel": true},
		},
		"logging": map[string]interface{}{"level": "debug"},
	}
	assert.NoError(t, v.Validate(valid))

	err = v.Validate(map[string]interface{}{"notifier": "kqueue"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/notifier")

	err = v.Validate(map[string]interface{}{
		"filetype_settings": []map[string]interface{}{{"extension": "flac"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/filetype_settings/0")
}

func TestBackupValidator(t *testing.T) {
	v, err := NewBackupValidator()
	require.NoError(t, err)

	assert.NoError(t, v.ValidateJSON([]byte(`{
		"lasteventid": 18446744073709551615,
		"folder_scan_list": [
			{"folder_root": "/music", "paths_and_times": [{"path": "/music/a.flac", "time": "2024-01-02T03:04:05.123456789Z"}]}
		]
	}`)))

	assert.Error(t, v.ValidateJSON([]byte(`{"folder_scan_list": []}`)))
	assert.Error(t, v.ValidateJSON([]byte(`{"lasteventid": -1, "folder_scan_list": []}`)))
	assert.Error(t, v.ValidateJSON([]byte(`{"lasteventid": 1, "folder_scan_list": [{"folder_root": "/m"}]}`)))
	assert.Error(t, v.ValidateJSON([]byte(`{"lasteventid": 1,`)))
}

func TestBackupValidatorKeepsCursorExact(t *testing.T) {
	v, err := NewBackupValidator()
	require.NoError(t, err)

	assert.NoError(t, v.ValidateJSON([]byte(`{"lasteventid": 9007199254740993, "folder_scan_list": []}`)))
	assert.Error(t, v.ValidateJSON([]byte(`{"lasteventid": 9007199254740992.5, "folder_scan_list": []}`)))
}

func TestEmbeddedSchemasExposed(t *testing.T) {
	assert.Contains(t, string(SettingsSchema()), "filetype_settings")
	assert.Contains(t, string(BackupSchema()), "lasteventid")
}
