package main

import (
	"reflect"
	"testing"
)

func TestParseDatabaseNames(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{
			name:   "single statement",
			script: `CREATE DATABASE "billing";`,
			want:   []string{"billing"},
		},
		{
			name: "multiple statements",
			script: `-- provision application databases
CREATE DATABASE "billing";
CREATE DATABASE "reporting";
GRANT ALL ON DATABASE "billing" TO app_user;
`,
			want: []string{"billing", "reporting"},
		},
		{
			name:   "case insensitive keywords",
			script: `create database "billing";`,
			want:   []string{"billing"},
		},
		{
			name: "duplicates collapsed",
			script: `CREATE DATABASE "billing";
CREATE DATABASE "billing";`,
			want: []string{"billing"},
		},
		{
			name:   "unquoted names ignored",
			script: `CREATE DATABASE billing;`,
			want:   nil,
		},
		{
			name:   "no statements",
			script: `SELECT 1;`,
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseDatabaseNames(tt.script)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseDatabaseNames() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMissingDatabases(t *testing.T) {
	existing := map[string]bool{
		"postgres": true,
		"billing":  true,
	}

	got := MissingDatabases(existing, []string{"billing", "reporting", "audit"})
	want := []string{"reporting", "audit"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MissingDatabases() = %v, want %v", got, want)
	}

	if got := MissingDatabases(existing, []string{"billing"}); got != nil {
		t.Errorf("MissingDatabases() = %v, want nil", got)
	}
}
