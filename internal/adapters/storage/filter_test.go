package storage

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/jobrunner/verto/internal/ports/output"
)

func keysOf(objects []output.StorageObject) []string {
	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		keys = append(keys, obj.Key)
	}
	sort.Strings(keys)
	return keys
}

func TestKeepConvertible(t *testing.T) {
	tests := []struct {
		name string
		keys []string
		want []string
	}{
		{
			name: "readable singles pass through",
			keys: []string{"points.geojson", "track.gpx"},
			want: []string{"points.geojson", "track.gpx"},
		},
		{
			name: "companions kept with their anchor",
			keys: []string{"parcels.shp", "parcels.shx", "parcels.dbf", "parcels.prj"},
			want: []string{"parcels.dbf", "parcels.prj", "parcels.shp", "parcels.shx"},
		},
		{
			name: "orphan companions dropped",
			keys: []string{"backup.dat", "zones.map", "session.id", "points.geojson"},
			want: []string{"points.geojson"},
		},
		{
			name: "anchor match is case insensitive",
			keys: []string{"Parcels.SHP", "parcels.dbf"},
			want: []string{"Parcels.SHP", "parcels.dbf"},
		},
		{
			name: "anchor in another directory does not adopt",
			keys: []string{"a/parcels.shp", "b/parcels.dbf"},
			want: []string{"a/parcels.shp"},
		},
		{
			name: "same directory anchor adopts nested companions",
			keys: []string{"sub/roads.tab", "sub/roads.dat", "sub/roads.map", "sub/roads.id"},
			want: []string{"sub/roads.dat", "sub/roads.id", "sub/roads.map", "sub/roads.tab"},
		},
		{
			name: "anchor without companions survives",
			keys: []string{"lonely.shp"},
			want: []string{"lonely.shp"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			objects := make([]output.StorageObject, len(tt.keys))
			for i, k := range tt.keys {
				objects[i] = output.StorageObject{Key: k}
			}

			got := keysOf(keepConvertible(objects))
			if len(got) != len(tt.want) {
				t.Fatalf("kept %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("kept %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestLocalStorageListDropsOrphanCompanions(t *testing.T) {
	tmpDir := t.TempDir()

	// .dat and .map are generic extensions; without a sibling anchor they
	// would list as datasets that can only fail downstream.
	for _, f := range []string{"backup.dat", "zones.map", "points.geojson"} {
		if err := os.WriteFile(filepath.Join(tmpDir, f), []byte("test"), 0644); err != nil {
			t.Fatalf("failed to create file: %v", err)
		}
	}

	storage := NewLocalStorage(tmpDir)
	objects, err := storage.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	if len(objects) != 1 || objects[0].Key != "points.geojson" {
		t.Errorf("objects = %v, want just points.geojson", keysOf(objects))
	}
}
