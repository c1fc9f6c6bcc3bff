package ospackage

import (
	"reflect"
	"sort"
	"testing"
)

func names(ps []PackageInfo) []string {
	outs := []string{}
	for _, p := range ps {
		outs = append(outs, p.Name)
	}
	sort.Strings(outs)
	return outs
}

func TestResolvePackageInfos(t *testing.T) {
	tests := []struct {
		name      string
		requested []PackageInfo
		all       []PackageInfo
		want      []string
		wantErr   bool
	}{
		{
			name: "SimpleChain",
			all: []PackageInfo{
				{Name: "C", Provides: []string{"C"}, Requires: []string{}},
				{Name: "B", Provides: []string{"B"}, Requires: []string{"C"}},
				{Name: "A", Provides: []string{"A"}, Requires: []string{"B"}},
			},
			requested: []PackageInfo{
				{Name: "A", Provides: []string{"A"}, Requires: []string{"B"}},
			},
			want: []string{"A", "B", "C"},
		},
		{
			name: "MultipleProviders",
			all: []PackageInfo{
				{Name: "Y", Provides: []string{"Y"}, Requires: []string{}},
				{Name: "P1", Provides: []string{"X"}, Requires: []string{}},
				{Name: "P2", Provides: []string{"X"}, Requires: []string{"Y"}},
				{Name: "A", Provides: []string{"A"}, Requires: []string{"X"}},
			},
			requested: []PackageInfo{
				{Name: "A", Provides: []string{"A"}, Requires: []string{"X"}},
			},
			want: []string{"A", "P2", "Y"},
		},
		{
			name: "NoDependencies",
			all: []PackageInfo{
				{Name: "X", Provides: []string{"X"}, Requires: []string{}},
			},
			requested: []PackageInfo{
				{Name: "X", Provides: []string{"A"}, Requires: []string{"X"}},
			},
			want: []string{"X"},
		},
		{
			name: "MissingRequested",
			all: []PackageInfo{
				{Name: "A", Provides: []string{"A"}, Requires: []string{}},
			},
			requested: []PackageInfo{
				{Name: "B", Provides: []string{"B"}, Requires: []string{""}},
			},
			wantErr: true,
		},
		{
			name: "SharedDependencyOnce",
			all: []PackageInfo{
				{Name: "libc", Provides: []string{"libc.so"}, Requires: []string{}},
				{Name: "A", Provides: []string{"A"}, Requires: []string{"libc.so"}},
				{Name: "B", Provides: []string{"B"}, Requires: []string{"libc.so"}},
			},
			requested: []PackageInfo{
				{Name: "A", Provides: []string{"A"}, Requires: []string{"libc.so"}},
				{Name: "B", Provides: []string{"B"}, Requires: []string{"libc.so"}},
			},
			want: []string{"A", "B", "libc"},
		},
		{
			name: "DependencyCycle",
			all: []PackageInfo{
				{Name: "A", Provides: []string{"A"}, Requires: []string{"B"}},
				{Name: "B", Provides: []string{"B"}, Requires: []string{"A"}},
			},
			requested: []PackageInfo{
				{Name: "A", Provides: []string{"A"}, Requires: []string{"B"}},
			},
			want: []string{"A", "B"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolvePackageInfos(tc.requested, tc.all)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr? %v", err, tc.wantErr)
			}
			if !tc.wantErr && !reflect.DeepEqual(names(got), tc.want) {
				t.Errorf("ResolvePackageInfos[%s] = %v; want %v", tc.name, names(got), tc.want)
			}
		})
	}
}
