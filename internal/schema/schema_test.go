package schema

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/jittakal/tabular2mcap/internal/errors"
	"github.com/jittakal/tabular2mcap/internal/ros2msg"
)

func TestSanitizeSchemaName(t *testing.T) {
	tests := map[string]string{
		"/gps/fix_data":          "_gps/FixData",
		"sensors/imu-raw/DATA":   "sensors_imu_raw/Data",
		"/a.b/c d/speed (m/s)":   "_a_b_c_d_speed__m/S",
		"vehicle/odom__hi_THERE": "vehicle/OdomHiThere",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeSchemaName(in), in)
	}
}

func TestSanitizeFieldName(t *testing.T) {
	assert.Equal(t, "speed_m_s_", SanitizeFieldName("Speed(m/s)"))
	assert.Equal(t, "lat_deg", SanitizeFieldName("lat_deg"))
}

func TestJSONSchemas_Lookup(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "LocationFix.json"), []byte(`{"title":"override"}`), 0o644))

	s := NewJSONSchemas(Options{JSONSchemaDirs: []string{dir}}, nil)

	data, err := s.Lookup("foxglove.LocationFix")
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"override"}`, string(data))

	data, err = s.Lookup("CompressedImage")
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "foxglove.CompressedImage", doc["title"])

	for _, name := range []string{"NoSuchSchema", "../etc/passwd"} {
		_, err = s.Lookup(name)
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, apperrors.ErrUnknownSchema), name)
		var se *apperrors.SchemaError
		assert.True(t, errors.As(err, &se))
	}
}

func TestJSONSchemas_CacheDir(t *testing.T) {
	cache := t.TempDir()
	dir := filepath.Join(cache, "humble", "foxglove-sdk", "schemas", "jsonschema")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Grid.json"), []byte(`{}`), 0o644))

	s := NewJSONSchemas(Options{CacheDir: cache, Distro: "humble"}, nil)
	_, err := s.Lookup("Grid")
	assert.NoError(t, err)
}

func TestEmbeddedJSONSchemas_Valid(t *testing.T) {
	names := EmbeddedJSONSchemas()
	require.NotEmpty(t, names)
	for _, name := range names {
		data, ok := embeddedJSONSchema(name)
		require.True(t, ok, name)
		assert.True(t, json.Valid(data), name)
	}
}

func TestRos2Msgs_Definition(t *testing.T) {
	r := NewRos2Msgs(Options{}, nil)

	text, err := r.Definition("geometry_msgs/msg/PoseStamped", "")
	require.NoError(t, err)

	var headers []string
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "MSG: ") {
			headers = append(headers, strings.TrimPrefix(line, "MSG: "))
		}
	}
	assert.Equal(t, []string{
		"std_msgs/Header", "geometry_msgs/Pose", "geometry_msgs/Point", "geometry_msgs/Quaternion",
	}, headers)
	assert.Contains(t, text, Separator+"\nMSG: std_msgs/Header\n")
	assert.NotContains(t, text, "MSG: builtin_interfaces")
}

func TestRos2Msgs_DefinitionDedup(t *testing.T) {
	r := NewRos2Msgs(Options{}, nil)
	text, err := r.Definition("tf2_msgs/TFMessage", "")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(text, "MSG: geometry_msgs/Quaternion\n"))
	assert.Equal(t, 1, strings.Count(text, "MSG: std_msgs/Header\n"))
}

func TestRos2Msgs_DefinitionCustom(t *testing.T) {
	r := NewRos2Msgs(Options{}, nil)
	custom := "builtin_interfaces/Time timestamp\nfloat64 speed\ngeometry_msgs/Vector3 accel"
	text, err := r.Definition("_vehicle/Odom", custom)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, custom+"\n"+Separator+"\nMSG: geometry_msgs/Vector3\n"), text)
}

func TestRos2Msgs_Unknown(t *testing.T) {
	r := NewRos2Msgs(Options{}, nil)
	_, err := r.Definition("nope_msgs/Missing", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnknownSchema))

	_, err = r.Definition("NoPackage", "")
	assert.Error(t, err)
}

func TestRos2Msgs_SearchOrder(t *testing.T) {
	msgDir := t.TempDir()
	writeFile(t, filepath.Join(msgDir, "ws", "src", "std_msgs", "msg", "Header.msg"), "string frame_id\n")

	cache := t.TempDir()
	writeFile(t, filepath.Join(cache, DefaultDistro, "foxglove-sdk", "ros", "foxglove_msgs", "ros2", "Log.msg"), "string message\n")

	r := NewRos2Msgs(Options{MsgDirs: []string{msgDir}, CacheDir: cache}, nil)

	text, err := r.Lookup("std_msgs/Header")
	require.NoError(t, err)
	assert.Equal(t, "string frame_id\n", text)

	text, err = r.Lookup("foxglove_msgs/msg/Log")
	require.NoError(t, err)
	assert.Equal(t, "string message\n", text)

	text, err = r.Lookup("geometry_msgs/Point")
	require.NoError(t, err)
	assert.Contains(t, text, "float64 x")
}

func TestEmbeddedMsgs_Encodable(t *testing.T) {
	r := NewRos2Msgs(Options{}, nil)
	names := EmbeddedMsgs()
	require.NotEmpty(t, names)
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			text, err := r.Definition(name, "")
			require.NoError(t, err)
			set, err := ros2msg.ParseSchema(name, text)
			require.NoError(t, err)
			enc, err := ros2msg.NewEncoder(set)
			require.NoError(t, err)
			_, err = enc.Encode(map[string]any{})
			require.NoError(t, err)
		})
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func archiveServer(t *testing.T, status int, body []byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if status != http.StatusOK {
			http.Error(w, "nope", status)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestFetcher_Fetch(t *testing.T) {
	body := zipArchive(t, map[string]string{
		"common_interfaces-jazzy/std_msgs/msg/Header.msg":     "string frame_id\n",
		"common_interfaces-jazzy/geometry_msgs/msg/Point.msg": "float64 x\n",
		"common_interfaces-jazzy/README.md":                   "readme",
	})
	srv, hits := archiveServer(t, http.StatusOK, body)

	cache := t.TempDir()
	repo := Repository{Name: "common_interfaces", URL: srv.URL + "/{distro}.zip"}
	f := NewFetcher(cache, nil, WithRepositories([]Repository{repo}), WithRetryDelay(0))

	require.NoError(t, f.FetchAll(context.Background(), "jazzy"))
	assert.Equal(t, 2, CachedMsgFiles(cache, "jazzy", "common_interfaces"))
	assert.FileExists(t, filepath.Join(cache, "jazzy", "common_interfaces", "std_msgs", "msg", "Header.msg"))

	require.NoError(t, f.FetchAll(context.Background(), "jazzy"))
	assert.Equal(t, int32(1), hits.Load(), "cached repositories are not downloaded again")

	list, err := List(cache)
	require.NoError(t, err)
	assert.Equal(t, []CachedRepository{{Distro: "jazzy", Repository: "common_interfaces", MsgFiles: 2}}, list)
}

func TestFetcher_Retries(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantHits int32
	}{
		{"client error is not retried", http.StatusNotFound, 1},
		{"server error is retried", http.StatusBadGateway, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, hits := archiveServer(t, tt.status, nil)
			repo := Repository{Name: "geometry2", URL: srv.URL + "/x.zip"}
			f := NewFetcher(t.TempDir(), nil, WithRepositories([]Repository{repo}), WithAttempts(3), WithRetryDelay(0))

			err := f.FetchAll(context.Background(), "jazzy")
			require.Error(t, err)
			var fe *apperrors.FetchError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.status, fe.StatusCode)
			assert.Equal(t, tt.wantHits, hits.Load())
		})
	}
}

func TestFetcher_RejectsZipSlip(t *testing.T) {
	body := zipArchive(t, map[string]string{"../evil.msg": "x"})
	srv, _ := archiveServer(t, http.StatusOK, body)
	repo := Repository{Name: "evil", URL: srv.URL}
	f := NewFetcher(t.TempDir(), nil, WithRepositories([]Repository{repo}), WithRetryDelay(0))

	err := f.Fetch(context.Background(), repo, "jazzy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "illegal path")
}

func TestFetcher_MissingRoot(t *testing.T) {
	body := zipArchive(t, map[string]string{"other-main/a.msg": "x"})
	srv, _ := archiveServer(t, http.StatusOK, body)
	repo := Repository{Name: "geometry2", URL: srv.URL}
	f := NewFetcher(t.TempDir(), nil, WithRetryDelay(0))

	err := f.Fetch(context.Background(), repo, "jazzy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not find extracted directory")
}

func TestList_MissingDir(t *testing.T) {
	list, err := List(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestFetcherOptions(t *testing.T) {
	f := NewFetcher(t.TempDir(), nil, WithTimeout(30*time.Second), WithAttempts(0))
	assert.Equal(t, 30*time.Second, f.client.Timeout)
	assert.Equal(t, uint(3), f.attempts, "zero attempts keeps the default")

	f = NewFetcher(t.TempDir(), nil, WithTimeout(0))
	assert.Equal(t, 120*time.Second, f.client.Timeout)
}
