// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package commands_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	ft "github.com/juju/testing/filetesting"
	_ "github.com/mattn/go-sqlite3"
	gc "gopkg.in/check.v1"
	"gopkg.in/yaml.v3"

	"github.com/manuals-rag/ragbundle/bundle"
	"github.com/manuals-rag/ragbundle/cmd"
	"github.com/manuals-rag/ragbundle/cmd/cmdtesting"
	"github.com/manuals-rag/ragbundle/cmd/ragbundle/commands"
	"github.com/manuals-rag/ragbundle/config"
	"github.com/manuals-rag/ragbundle/service"
)

type fakeService struct {
	running bool
	calls   []string
}

func (f *fakeService) Running() (service.Handle, error) {
	f.calls = append(f.calls, "running")
	h := service.Handle{Address: "127.0.0.1:8765"}
	if f.running {
		h.PortBound = true
		h.PIDs = []int{7}
	}
	return h, nil
}

func (f *fakeService) Stop(context.Context, service.Handle) error {
	f.calls = append(f.calls, "stop")
	f.running = false
	return nil
}

func (f *fakeService) Start(context.Context) (string, error) {
	f.calls = append(f.calls, "start")
	f.running = true
	return f.Endpoint(), nil
}

func (f *fakeService) Address() string  { return "127.0.0.1:8765" }
func (f *fakeService) Endpoint() string { return "http://127.0.0.1:8765/ui/" }

// baseSuite lays out a project with live data and a settings file.
type baseSuite struct {
	testing.IsolationSuite

	dir     string
	base    string
	service *fakeService
	extra   map[string]interface{}
}

func (s *baseSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.dir = c.MkDir()
	s.base = filepath.Join(s.dir, "project")
	ft.Entries{
		ft.Dir{Path: "data/index", Perm: 0755},
		ft.File{Path: "data/index/faiss.index", Data: "vectors v1", Perm: 0644},
		ft.File{Path: "data/index/meta.json", Data: `{"count": 2}`, Perm: 0644},
		ft.Dir{Path: "data/raw", Perm: 0755},
		ft.File{Path: "data/raw/pump.md", Data: "# Pump", Perm: 0644},
		ft.File{Path: "data/raw/valve.md", Data: "# Valve", Perm: 0644},
	}.Create(c, s.base)

	db, err := sql.Open("sqlite3", filepath.Join(s.base, "data", "index", "chunks.sqlite"))
	c.Assert(err, jc.ErrorIsNil)
	_, err = db.Exec(`CREATE TABLE chunks (id INTEGER PRIMARY KEY, text TEXT); INSERT INTO chunks (text) VALUES ('a'), ('b')`)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(db.Close(), jc.ErrorIsNil)

	s.service = &fakeService{}
	commands.PatchServiceController(s, func(*config.Config) (commands.ServiceController, error) {
		return s.service, nil
	})
	s.extra = nil
	s.writeSettings(c)
}

func (s *baseSuite) writeSettings(c *gc.C) {
	settings := map[string]interface{}{
		config.BaseDirKey:         s.base,
		config.ServicePortKey:     8765,
		config.ServicePatternsKey: []string{"ragbundle-test-worker"},
	}
	for k, v := range s.extra {
		settings[k] = v
	}
	data, err := yaml.Marshal(settings)
	c.Assert(err, jc.ErrorIsNil)
	err = os.WriteFile(filepath.Join(s.dir, config.DefaultFile), data, 0644)
	c.Assert(err, jc.ErrorIsNil)
}

func (s *baseSuite) run(c *gc.C, args ...string) (int, *cmd.Context) {
	ctx := cmdtesting.Context(c)
	ctx.Dir = s.dir
	code := cmd.Main(commands.NewSuperCommand(), ctx, args)
	return code, ctx
}

func (s *baseSuite) mustRun(c *gc.C, args ...string) string {
	code, ctx := s.run(c, args...)
	c.Assert(code, gc.Equals, 0, gc.Commentf("stderr: %s", cmdtesting.Stderr(ctx)))
	return cmdtesting.Stdout(ctx)
}

func (s *baseSuite) export(c *gc.C) *bundle.ExportResult {
	var result bundle.ExportResult
	out := s.mustRun(c, "export", "--label", "prod", "--format", "json")
	c.Assert(json.Unmarshal([]byte(out), &result), jc.ErrorIsNil)
	return &result
}

type commandsSuite struct {
	baseSuite
}

var _ = gc.Suite(&commandsSuite{})

func (s *commandsSuite) TestExportTabular(c *gc.C) {
	out := s.mustRun(c, "export", "--label", "prod")
	c.Check(out, gc.Matches, `Archive +.*manuals-rag-prod-\d{8}-\d{6}\.zip
SHA256 +[0-9a-f]{64}
Size +.* \(\d+ bytes\)
Chunk store +copy
Documents +2
`)
}

func (s *commandsSuite) TestExportJSON(c *gc.C) {
	result := s.export(c)
	c.Check(filepath.Dir(result.Archive), gc.Equals, filepath.Join(s.base, "dist"))
	c.Check(result.Manifest.App, gc.Equals, "manuals-rag")
	c.Assert(result.Manifest.ChunkCount, gc.NotNil)
	c.Check(*result.Manifest.ChunkCount, gc.Equals, 2)
}

func (s *commandsSuite) TestExportMissingPrerequisite(c *gc.C) {
	c.Assert(os.Remove(filepath.Join(s.base, "data", "index", "faiss.index")), jc.ErrorIsNil)
	code, ctx := s.run(c, "export")
	c.Check(code, gc.Equals, 1)
	c.Check(cmdtesting.Stderr(ctx), gc.Matches, `(?s).*ERROR export failed: staging: .*faiss.index.*missing prerequisite.*`)
}

func (s *commandsSuite) TestListAndVerify(c *gc.C) {
	result := s.export(c)

	out := s.mustRun(c, "list")
	c.Check(out, gc.Matches, fmt.Sprintf(`Name +Size +Modified +Checksum
%s +.* +ok
`, filepath.Base(result.Archive)))

	out = s.mustRun(c, "verify")
	c.Check(out, gc.Equals, fmt.Sprintf("OK  %s  %s\n", result.SHA256, result.Archive))

	out = s.mustRun(c, "verify", result.Archive, "--format", "yaml")
	c.Check(out, gc.Equals, fmt.Sprintf("archive: %s\nsha256: %s\n", result.Archive, result.SHA256))
}

func (s *commandsSuite) TestVerifyMismatch(c *gc.C) {
	result := s.export(c)
	data, err := os.ReadFile(result.Archive)
	c.Assert(err, jc.ErrorIsNil)
	data[len(data)/3] ^= 0x01
	c.Assert(os.WriteFile(result.Archive, data, 0644), jc.ErrorIsNil)

	code, ctx := s.run(c, "verify")
	c.Check(code, gc.Equals, 1)
	c.Check(cmdtesting.Stderr(ctx), gc.Matches, `(?s).*ERROR verify failed: .*: checksum mismatch\n`)

	out := s.mustRun(c, "list", "--format", "json")
	var infos []map[string]interface{}
	c.Assert(json.Unmarshal([]byte(out), &infos), jc.ErrorIsNil)
	c.Assert(infos, gc.HasLen, 1)
	c.Check(infos[0]["checksum"], gc.Equals, "mismatch")
}

func (s *commandsSuite) TestListEmpty(c *gc.C) {
	code, ctx := s.run(c, "list")
	c.Check(code, gc.Equals, 0)
	c.Check(cmdtesting.Stdout(ctx), gc.Equals, "")
	c.Check(cmdtesting.Stderr(ctx), gc.Matches, `(?s).*No archives in .*dist\n`)

	out := s.mustRun(c, "list", "--format", "json")
	c.Check(out, gc.Equals, "[]\n")
}

func (s *commandsSuite) TestListPlainWhenPiped(c *gc.C) {
	s.export(c)
	out := s.mustRun(c, "list")
	c.Check(out, gc.Not(jc.Contains), "\x1b[")
}

func (s *commandsSuite) TestListColouredWhenForced(c *gc.C) {
	s.export(c)
	s.PatchEnvironment("CLICOLOR_FORCE", "1")
	out := s.mustRun(c, "list")
	c.Check(out, gc.Matches, `(?s)Name +Size +Modified +Checksum\n.*\x1b\[[0-9;]*m.*ok.*`)
}

func (s *commandsSuite) TestListNoColorBeatsForce(c *gc.C) {
	s.export(c)
	s.PatchEnvironment("CLICOLOR_FORCE", "1")
	s.PatchEnvironment("NO_COLOR", "")
	out := s.mustRun(c, "list")
	c.Check(out, gc.Not(jc.Contains), "\x1b[")
}

func (s *commandsSuite) TestImport(c *gc.C) {
	result := s.export(c)
	ft.Entries{
		ft.File{Path: "data/index/faiss.index", Data: "vectors v2", Perm: 0644},
		ft.Removed{Path: "data/raw/pump.md"},
	}.Create(c, s.base)
	s.service.running = true

	out := s.mustRun(c, "import", "--format", "yaml")
	var imported map[string]interface{}
	c.Assert(yaml.Unmarshal([]byte(out), &imported), jc.ErrorIsNil)
	c.Check(imported["state"], gc.Equals, "done")
	c.Check(imported["archive"], gc.Equals, result.Archive)
	c.Check(imported["endpoint"], gc.Equals, "http://127.0.0.1:8765/ui/")
	c.Check(s.service.calls, jc.DeepEquals, []string{"running", "stop", "start"})

	ft.Entries{
		ft.File{Path: "data/index/faiss.index", Data: "vectors v1", Perm: 0644},
		ft.File{Path: "data/raw/pump.md", Data: "# Pump", Perm: 0644},
	}.Check(c, s.base)
}

func (s *commandsSuite) TestImportTabular(c *gc.C) {
	result := s.export(c)

	out := s.mustRun(c, "import", "--file", result.Archive, "--autostart")
	c.Check(out, gc.Matches, fmt.Sprintf(`(?s)Archive +%s
SHA256 +%s
Restored +.*index
 +.*raw
Built +.* by manuals-rag
Models +.*
Chunks +2
Service +http://127.0.0.1:8765/ui/
`, result.Archive, result.SHA256))
}

func (s *commandsSuite) TestImportNoArchive(c *gc.C) {
	code, ctx := s.run(c, "import")
	c.Check(code, gc.Equals, 1)
	c.Check(cmdtesting.Stderr(ctx), gc.Matches, `(?s).*ERROR import failed: resolve-archive: .*no archive found\n`)
}

func (s *commandsSuite) TestStatus(c *gc.C) {
	out := s.mustRun(c, "status")
	c.Check(out, gc.Equals, "Service on 127.0.0.1:8765 is not running\n")

	s.service.running = true
	out = s.mustRun(c, "status")
	c.Check(out, gc.Equals, "Service on 127.0.0.1:8765 is running (pids 7): http://127.0.0.1:8765/ui/\n")

	out = s.mustRun(c, "status", "--format", "json")
	c.Check(out, gc.Equals, `{"address":"127.0.0.1:8765","port-bound":true,"pids":[7],"running":true,"endpoint":"http://127.0.0.1:8765/ui/"}`+"\n")
}

func (s *commandsSuite) TestBadSettings(c *gc.C) {
	s.extra = map[string]interface{}{"colour": "blue"}
	s.writeSettings(c)
	code, ctx := s.run(c, "list")
	c.Check(code, gc.Equals, 1)
	c.Check(cmdtesting.Stderr(ctx), gc.Matches, `(?s).*ERROR loading settings: .*colour.*\n`)
}

func (s *commandsSuite) TestExplicitSettingsFile(c *gc.C) {
	other := filepath.Join(c.MkDir(), "other.yaml")
	err := os.WriteFile(other, []byte("base-dir: "+s.base+"\noutput-dir: elsewhere\n"), 0644)
	c.Assert(err, jc.ErrorIsNil)

	out := s.mustRun(c, "export", "--config", other, "--format", "json")
	var result bundle.ExportResult
	c.Assert(json.Unmarshal([]byte(out), &result), jc.ErrorIsNil)
	c.Check(filepath.Dir(result.Archive), gc.Equals, filepath.Join(s.base, "elsewhere"))
}

func (s *commandsSuite) TestUsageErrors(c *gc.C) {
	for _, args := range [][]string{
		{"verify", "a.zip", "b.zip"},
		{"export", "--format", "xml"},
		{"status", "extra"},
	} {
		code, _ := s.run(c, args...)
		c.Check(code, gc.Equals, 2, gc.Commentf("%v", args))
	}
}
