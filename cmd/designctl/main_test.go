package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"designcore/internal/cache"
	"designcore/internal/config"
	"designcore/internal/core"
	blobmemory "designcore/internal/infra/blob/memory"
	"designcore/pkg/domain"
)

func newTestApp(t *testing.T, opts ...core.Option) *app {
	t.Helper()
	svc := core.NewInMemoryService(nil, opts...)
	if _, err := svc.SeedDefaultRoles(context.Background(), core.Actor{}); err != nil {
		t.Fatalf("seed roles: %v", err)
	}
	return &app{svc: svc}
}

// invoke runs designctl with args and returns stdout, stderr and the exit
// code.
func invoke(t *testing.T, a *app, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := cli(context.Background(), a, args, &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

func mustInvoke(t *testing.T, a *app, out any, args ...string) {
	t.Helper()
	stdout, stderr, code := invoke(t, a, args...)
	if code != 0 {
		t.Fatalf("designctl %s exited %d: %s", strings.Join(args, " "), code, stderr)
	}
	if out != nil {
		if err := json.Unmarshal([]byte(stdout), out); err != nil {
			t.Fatalf("decode output of %s: %v\n%s", args[0], err, stdout)
		}
	}
}

func createPart(t *testing.T, a *app, args ...string) string {
	t.Helper()
	var created map[string]string
	mustInvoke(t, a, &created, append([]string{"create", "part"}, args...)...)
	if created["id"] == "" {
		t.Fatalf("expected created id")
	}
	return created["id"]
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestSearchAndComposeCommands(t *testing.T) {
	a := newTestApp(t)
	a.owner = "alice"
	d1 := createPart(t, a, "--name", "pTet", "--sequence", "ATGCGT", "--role", "promoter", "--param", "name=strength,value=2.5")

	var ids []string
	mustInvoke(t, a, &ids, "search", "--sequence", "atgcgt")
	if len(ids) != 1 || ids[0] != d1 {
		t.Fatalf("expected [%s], got %v", d1, ids)
	}
	mustInvoke(t, a, &ids, "search", "--sequence", "ATGCGT", "--role", "PROMOTER")
	if len(ids) != 0 {
		t.Fatalf("promoter is a feature role, expected no module match, got %v", ids)
	}
	mustInvoke(t, a, &ids, "search", "--param", "name=str,value=2.50", "--mine")
	if len(ids) != 1 {
		t.Fatalf("expected parameter match, got %v", ids)
	}
	mustInvoke(t, a, &ids, "search", "--param", "name=strength")
	if len(ids) != 1 || ids[0] != d1 {
		t.Fatalf("expected name-only parameter match [%s], got %v", d1, ids)
	}

	var trees []domain.DesignTree
	mustInvoke(t, a, &trees, "search", "--name", "tet", "--compose")
	if len(trees) != 1 || trees[0].Design.ID != d1 {
		t.Fatalf("expected composed match, got %+v", trees)
	}
	mustInvoke(t, a, &trees, "compose", d1)
	if len(trees) != 1 || trees[0].Design.Name != "pTet" || len(trees[0].Parameters) != 1 {
		t.Fatalf("unexpected tree %+v", trees)
	}
	if len(trees[0].Parts) != 1 || len(trees[0].Parts[0].Sequences) != 1 {
		t.Fatalf("expected part with sequence, got %+v", trees[0].Parts)
	}
}

func TestCreateDeviceAndModuleCommands(t *testing.T) {
	a := newTestApp(t)
	p1 := createPart(t, a, "--name", "a")
	p2 := createPart(t, a, "--name", "b")
	var created map[string]string
	mustInvoke(t, a, &created, "create", "device", "--name", "dev", "--sub", p1+","+p2)
	dev := created["id"]
	mustInvoke(t, a, &created, "create", "module", "--name", "m", "--design", dev, "--role", "reporter")

	var ids []string
	mustInvoke(t, a, &ids, "search", "--role", "Reporter")
	if len(ids) != 1 || ids[0] != dev {
		t.Fatalf("expected device by module role, got %v", ids)
	}
	var trees []domain.DesignTree
	mustInvoke(t, a, &trees, "compose", dev)
	if len(trees[0].Subdesigns) != 2 || len(trees[0].Modules) != 1 {
		t.Fatalf("unexpected device tree %+v", trees[0])
	}
}

func TestReviseResolveHistoryCommands(t *testing.T) {
	a := newTestApp(t)
	a.owner = "alice"
	d1 := createPart(t, a, "--name", "p")
	payload := writeFile(t, "d2.json", `{"name":"p v2","kind":"PART"}`)

	var created map[string]string
	mustInvoke(t, a, &created, "revise", "design", "--from", d1, "--file", payload)
	d2 := created["id"]

	var res core.Resolution
	mustInvoke(t, a, &res, "resolve", d1)
	if res.ID != d2 || res.VersionNumber != 2 {
		t.Fatalf("expected {%s 2}, got %+v", d2, res)
	}
	var chain []domain.Version
	mustInvoke(t, a, &chain, "history", d2)
	if len(chain) != 2 || chain[0].ObjectID != d1 || chain[1].ObjectID != d2 {
		t.Fatalf("unexpected history %+v", chain)
	}

	_, stderr, code := invoke(t, a, "revise", "design", "--from", d1, "--file", payload)
	if code != exitCodes["conflict"] || !strings.Contains(stderr, "designctl:") {
		t.Fatalf("expected conflict exit, got %d %q", code, stderr)
	}
}

func TestReviseReadsStdin(t *testing.T) {
	a := newTestApp(t)
	root := newRootCmd(a)
	var stdout bytes.Buffer
	root.SetIn(strings.NewReader(`{"name":"fresh","kind":"PART"}`))
	root.SetOut(&stdout)
	root.SetArgs([]string{"revise", "design"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("revise from stdin: %v", err)
	}
	var created map[string]string
	if err := json.Unmarshal(stdout.Bytes(), &created); err != nil || domain.ValidateID(created["id"]) != nil {
		t.Fatalf("expected new id, got %q %v", stdout.String(), err)
	}
}

func TestExitCodes(t *testing.T) {
	a := newTestApp(t)
	cases := []struct {
		name string
		args []string
		code int
	}{
		{"missing design", []string{"resolve", domain.NewID()}, exitCodes["not_found"]},
		{"malformed id", []string{"compose", "nope"}, exitCodes["invalid_argument"]},
		{"unversioned collection", []string{"revise", "assembly", "--file", "-"}, exitCodes["invalid_argument"]},
		{"bad parameter", []string{"create", "part", "--name", "x", "--param", "value=high"}, exitCodes["invalid_argument"]},
		{"malformed pair", []string{"search", "--param", "value"}, exitCodes["invalid_argument"]},
		{"export without blob store", []string{"export", domain.NewID()}, exitCodes["invalid_argument"]},
		{"missing args", []string{"resolve"}, 1},
		{"unknown command", []string{"frobnicate"}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, stderr, code := invoke(t, a, tc.args...); code != tc.code {
				t.Fatalf("expected exit %d, got %d: %s", tc.code, code, stderr)
			}
		})
	}
}

func TestDeleteRestorePurgeCommands(t *testing.T) {
	a := newTestApp(t)
	a.owner = "alice"
	id := createPart(t, a, "--name", "p", "--sequence", "ATG", "--role", "CDS", "--param", "name=gc,value=0.5")

	mustInvoke(t, a, nil, "delete", "design", id)
	if _, _, code := invoke(t, a, "compose", id); code != exitCodes["not_found"] {
		t.Fatalf("deleted design must not compose, got %d", code)
	}
	var count map[string]int
	mustInvoke(t, a, &count, "restore", "--id", id)
	// design, part, sequence, annotation, feature and parameter
	if count["count"] != 6 {
		t.Fatalf("expected 6 restored documents, got %v", count)
	}
	mustInvoke(t, a, nil, "compose", id)

	mustInvoke(t, a, nil, "delete", "design", id)
	mustInvoke(t, a, &count, "purge", "--owned-by", "alice")
	if count["count"] != 6 {
		t.Fatalf("expected 6 purged documents, got %v", count)
	}
	mustInvoke(t, a, &count, "restore", "--id", id)
	if count["count"] != 0 {
		t.Fatalf("purged documents cannot be restored, got %v", count)
	}
	if _, _, code := invoke(t, a, "restore"); code != exitCodes["invalid_argument"] {
		t.Fatalf("restore without filters must be rejected, got %d", code)
	}
	if _, _, code := invoke(t, a, "delete", "version", id); code != exitCodes["invalid_argument"] {
		t.Fatalf("versions cannot be deleted, got %d", code)
	}
}

func TestRolesCommands(t *testing.T) {
	a := &app{svc: core.NewInMemoryService(nil)}
	var seeded map[string]int
	mustInvoke(t, a, &seeded, "roles", "seed")
	if seeded["inserted"] == 0 {
		t.Fatalf("expected built-in roles to be inserted")
	}
	mustInvoke(t, a, &seeded, "roles", "seed")
	if seeded["inserted"] != 0 {
		t.Fatalf("seeding twice must be a no-op, got %v", seeded)
	}

	var role domain.Role
	mustInvoke(t, a, &role, "roles", "create", " widget ", "--type", "module")
	if role.Name != "WIDGET" || len(role.Types) != 1 || role.Types[0] != domain.RoleTypeModule {
		t.Fatalf("unexpected role %+v", role)
	}
	if _, _, code := invoke(t, a, "roles", "create", "Widget"); code != exitCodes["conflict"] {
		t.Fatalf("expected conflict for duplicate role, got %d", code)
	}
	var roles []domain.Role
	mustInvoke(t, a, &roles, "roles", "list")
	found := false
	for _, r := range roles {
		found = found || r.Name == "WIDGET"
	}
	if !found || len(roles) != len(core.DefaultModuleRoles)+len(core.DefaultFeatureRoles)+1 {
		t.Fatalf("expected WIDGET among %d roles", len(roles))
	}
}

func TestExportCommand(t *testing.T) {
	blobs := blobmemory.New()
	a := newTestApp(t, core.WithBlobStore(blobs))
	id := createPart(t, a, "--name", "p", "--sequence", "ATG")

	var infos []map[string]any
	mustInvoke(t, a, &infos, "export", id)
	if len(infos) != 1 || infos[0]["key"] != core.ExportKey(id) {
		t.Fatalf("unexpected export %+v", infos)
	}
	if _, err := blobs.Head(context.Background(), core.ExportKey(id)); err != nil {
		t.Fatalf("expected export object: %v", err)
	}
}

func TestOpenFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, "designctl.yaml", strings.Join([]string{
		"storage:",
		"  driver: memory",
		"blob:",
		"  driver: fs",
		"  fs_root: " + filepath.Join(dir, "exports"),
		"cache:",
		"  driver: lru",
		"  size: 8",
		"log:",
		"  mode: development",
		"  level: error",
		"",
	}, "\n"))
	metricsPath := filepath.Join(dir, "metrics.prom")
	tracePath := filepath.Join(dir, "spans.jsonl")

	a := newApp()
	_, stderr, code := invoke(t, a,
		"--config", cfgPath,
		"--metrics", "prometheus",
		"--metrics-file", metricsPath,
		"--trace-file", tracePath,
		"roles", "seed",
	)
	if code != 0 {
		t.Fatalf("expected success, got %d: %s", code, stderr)
	}
	metrics, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(metrics), `designcore_service_operations_total{operation="seed_roles",status="success"} 1`) {
		t.Fatalf("expected seed counter in metrics:\n%s", metrics)
	}
	spans, err := os.ReadFile(tracePath)
	if err != nil {
		t.Fatalf("read spans: %v", err)
	}
	if !strings.Contains(string(spans), `"seed_roles"`) {
		t.Fatalf("expected seed span, got %s", spans)
	}
	if len(a.closers) != 0 {
		t.Fatalf("expected closers released")
	}
}

func TestOpenRejectsBadSettings(t *testing.T) {
	if _, _, code := invoke(t, newApp(), "--config", filepath.Join(t.TempDir(), "missing.yaml"), "roles", "list"); code != 1 {
		t.Fatalf("expected failure for missing config, got %d", code)
	}
	cfgPath := writeFile(t, "mem.yaml", "storage:\n  driver: memory\nlog:\n  level: error\n")
	if _, _, code := invoke(t, newApp(), "--config", cfgPath, "--metrics", "statsd", "roles", "list"); code != 1 {
		t.Fatalf("expected failure for unknown metrics mode, got %d", code)
	}
	a := newApp()
	mustInvoke(t, a, nil, "--config", cfgPath, "--metrics", "expvar", "roles", "list")
	if a.expvar == nil || a.expvar.Snapshot()["list_roles"].Success != 1 {
		t.Fatalf("expected expvar stats for list_roles")
	}
}

func TestOpenCache(t *testing.T) {
	ctx := context.Background()
	c, closer, err := openCache(ctx, config.CacheConfig{Driver: "none"})
	if err != nil || c != nil || closer != nil {
		t.Fatalf("none must disable caching, got %v %v %v", c, closer, err)
	}
	c, closer, err = openCache(ctx, config.CacheConfig{Driver: "lru", Size: 4})
	if err != nil || closer != nil {
		t.Fatalf("open lru: %v", err)
	}
	if _, ok := c.(*cache.LRU); !ok {
		t.Fatalf("expected LRU cache, got %T", c)
	}
	if _, _, err := openCache(ctx, config.CacheConfig{Driver: "redis"}); err == nil {
		t.Fatalf("expected error without redis address")
	}
	if _, _, err := openCache(ctx, config.CacheConfig{Driver: "memcached"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestParseParameterFlags(t *testing.T) {
	f, err := parseParameterFilter("Name=gc, units=%,value=0.4")
	if err != nil || f.Name != "gc" || f.Units != "%" || f.Value != "0.4" {
		t.Fatalf("unexpected filter %+v %v", f, err)
	}
	if f, err := parseParameterFilter("name=gc"); err != nil || f.Value != nil {
		t.Fatalf("value must stay unset, got %+v %v", f, err)
	}
	spec, err := parseParameterSpec("name=yield,variable=od,value=3")
	if err != nil || spec.Value != 3 || spec.Variable != "od" {
		t.Fatalf("unexpected spec %+v %v", spec, err)
	}
	if _, err := parseParameterSpec("name=yield"); domain.KindOf(err) != "invalid_argument" {
		t.Fatalf("expected invalid argument for missing value, got %v", err)
	}
}

func TestMainUsesExitFunc(t *testing.T) {
	oldArgs, oldExit := os.Args, exitFunc
	t.Cleanup(func() { os.Args, exitFunc = oldArgs, oldExit })
	got := -1
	exitFunc = func(code int) { got = code }
	os.Args = []string{"designctl", "--help"}
	main()
	if got != 0 {
		t.Fatalf("expected exit 0 for help, got %d", got)
	}
}
