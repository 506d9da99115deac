package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadGroupsDecodesFixture(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.json")
	fixture := `{
  "timestamp": 1700000000000,
  "groups": [
    {"company": 1, "device": 2, "tasks": [
      {"id": 1, "test_id": 1, "network": 0, "ping": {"target": "127.0.0.1", "count": 1, "period_ms": 60000, "expiry_ms": 1000}}
    ]}
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o644))

	groups, err := loadGroups(path)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Equal(t, uint64(1), groups[0].Company)
}

func TestLoadDevicesOptional(t *testing.T) {
	devices, err := loadDevices("")
	require.NoError(t, err)
	require.Nil(t, devices)
}

func TestLoadDevicesDecodesRegistry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "devices.json")
	fixture := `[{"id": 7, "columns": [{"id": 1, "name": "APP_PROTOCOL", "kind": 0}]}]`
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o644))

	devices, err := loadDevices(path)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Equal(t, "APP_PROTOCOL", devices[7].Columns[0].Name)
}

func TestNewSinkRejectsUnknownKind(t *testing.T) {
	_, err := newSink("bogus", "")
	require.Error(t, err)
}

func TestNewSinkNoURLSendIsNoop(t *testing.T) {
	sink, err := newSink("jsonsink", "")
	require.NoError(t, err)
	require.NoError(t, sink.Send(context.Background(), []byte("x")))
}
