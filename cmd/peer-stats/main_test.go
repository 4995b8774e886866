package main

import "testing"

func TestRedactDSN(t *testing.T) {
	cases := map[string]string{
		"postgres://user:secret@db:5432/peerstats": "postgres://user:%2A%2A%2A@db:5432/peerstats",
		"host=db user=u password=secret dbname=x":  "host=db user=u password=*** dbname=x",
		"postgres://db/peerstats":                  "postgres://db/peerstats",
	}
	for in, want := range cases {
		if got := redactDSN(in); got != want {
			t.Errorf("redactDSN(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAppCommands(t *testing.T) {
	app := newApp()
	for _, name := range []string{"bootstrap", "single-file", "index-pfx2as", "index-as2rel", "index-peer-stats", "migrate"} {
		if app.Command(name) == nil {
			t.Errorf("missing command %q", name)
		}
	}
}
