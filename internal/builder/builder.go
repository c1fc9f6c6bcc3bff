package builder

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/open-edge-platform/container-image-composer/internal/chroot"
	"github.com/open-edge-platform/container-image-composer/internal/config"
	"github.com/open-edge-platform/container-image-composer/internal/image/layer"
	"github.com/open-edge-platform/container-image-composer/internal/image/ocimaker"
	"github.com/open-edge-platform/container-image-composer/internal/image/rawmaker"
	"github.com/open-edge-platform/container-image-composer/internal/ospackage/debutils"
	"github.com/open-edge-platform/container-image-composer/internal/ospackage/rpmutils"
	"github.com/open-edge-platform/container-image-composer/internal/pkgfetcher"
	"github.com/open-edge-platform/container-image-composer/internal/provider"
	"github.com/open-edge-platform/container-image-composer/internal/pydeps"
	"github.com/open-edge-platform/container-image-composer/internal/utils/archive"
	"github.com/open-edge-platform/container-image-composer/internal/utils/logger"
	"github.com/open-edge-platform/container-image-composer/internal/utils/slice"
)

// StepStatus is the lifecycle state of one build step.
type StepStatus string

const (
	StatusPending StepStatus = "pending"
	StatusRunning StepStatus = "running"
	StatusDone    StepStatus = "done"
	StatusSkipped StepStatus = "skipped"
	StatusFailed  StepStatus = "failed"
)

// Event is emitted on every step transition.
type Event struct {
	Step    string
	Status  StepStatus
	Message string
	Err     error
}

// Observer receives step events, e.g. for the build monitor.
type Observer func(Event)

// Options tune one build run.
type Options struct {
	WorkDir     string // build workspace root
	CacheDir    string // download cache
	Compression string // layer compression: gzip or zstd
	RunCommands bool   // execute recipe runCommands in a chroot (needs root)
	Observer    Observer
}

// Result describes a finished build.
type Result struct {
	BuildID        string
	Ref            string
	RootfsDir      string
	LayoutDir      string
	RawImagePath   string
	ManifestDigest string
	Duration       time.Duration
}

// Builder provisions a rootfs from a recipe and packs it into an image.
type Builder struct {
	recipe  *config.BuildRecipe
	opts    Options
	buildID string

	rootfsDir string
	history   []ocimaker.HistoryEntry
}

// StepNames lists the build pipeline in execution order.
func StepNames() []string {
	return []string{
		"base-rootfs",
		"os-packages",
		"python-deps",
		"system-files",
		"run-commands",
		"pack-image",
	}
}

// New prepares a builder for one recipe. Unset options fall back to the
// global configuration.
func New(recipe *config.BuildRecipe, opts Options) (*Builder, error) {
	if opts.WorkDir == "" {
		wd, err := config.WorkDir()
		if err != nil {
			return nil, err
		}
		opts.WorkDir = wd
	}
	if opts.CacheDir == "" {
		cd, err := config.CacheDir()
		if err != nil {
			return nil, err
		}
		opts.CacheDir = cd
	}
	if opts.Compression == "" {
		opts.Compression = "gzip"
	}

	return &Builder{
		recipe:  recipe,
		opts:    opts,
		buildID: uuid.NewString(),
	}, nil
}

// BuildID identifies this build run in logs and reports.
func (b *Builder) BuildID() string { return b.buildID }

type step struct {
	name string
	run  func() (skipped bool, err error)
}

// Run executes the build pipeline, aborting on the first failing step.
func (b *Builder) Run() (*Result, error) {
	log := logger.Logger()
	start := time.Now()

	b.rootfsDir = filepath.Join(b.opts.WorkDir, b.buildID, "rootfs")
	if err := os.MkdirAll(b.rootfsDir, 0755); err != nil {
		return nil, fmt.Errorf("creating rootfs staging directory: %w", err)
	}

	result := &Result{
		BuildID:   b.buildID,
		Ref:       fmt.Sprintf("%s:%s", b.recipe.Image.Name, b.recipe.Image.Version),
		RootfsDir: b.rootfsDir,
	}

	steps := []step{
		{"base-rootfs", b.stepBaseRootfs},
		{"os-packages", b.stepOsPackages},
		{"python-deps", b.stepPythonDeps},
		{"system-files", b.stepSystemFiles},
		{"run-commands", b.stepRunCommands},
		{"pack-image", func() (bool, error) { return b.stepPackImage(result) }},
	}

	log.Infof("Starting build %s for %s", b.buildID, result.Ref)
	for _, s := range steps {
		b.emit(Event{Step: s.name, Status: StatusRunning})

		// Recorded up front so pack-image sees its own non-empty-layer
		// entry when it writes the image config. Skipped steps pop it.
		b.history = append(b.history, ocimaker.HistoryEntry{
			Created:    time.Now().UTC(),
			CreatedBy:  s.name,
			EmptyLayer: s.name != "pack-image",
		})

		skipped, err := s.run()
		if err != nil {
			b.emit(Event{Step: s.name, Status: StatusFailed, Err: err})
			return nil, fmt.Errorf("step %s: %w", s.name, err)
		}
		if skipped {
			b.history = b.history[:len(b.history)-1]
			b.emit(Event{Step: s.name, Status: StatusSkipped})
			continue
		}

		b.emit(Event{Step: s.name, Status: StatusDone})
	}

	result.Duration = time.Since(start)
	log.Infof("Build %s finished in %s", b.buildID, result.Duration.Round(time.Millisecond))
	return result, nil
}

func (b *Builder) emit(ev Event) {
	log := logger.Logger()
	switch ev.Status {
	case StatusFailed:
		log.Errorf("Step %s failed: %v", ev.Step, ev.Err)
	case StatusSkipped:
		log.Debugf("Step %s skipped", ev.Step)
	default:
		log.Debugf("Step %s: %s", ev.Step, ev.Status)
	}
	if b.opts.Observer != nil {
		b.opts.Observer(ev)
	}
}

// stepBaseRootfs places the base filesystem into the staging directory.
// A remote tarball is fetched through the download cache; a local path is
// extracted directly. An empty rootfsUrl starts from scratch.
func (b *Builder) stepBaseRootfs() (bool, error) {
	src := b.recipe.Base.RootfsURL
	if src == "" {
		return true, nil
	}

	local := src
	if strings.Contains(src, "://") {
		local = filepath.Join(b.opts.CacheDir, "base", path.Base(src))
		artifact := pkgfetcher.Artifact{URL: src, SHA256: b.recipe.Base.SHA256}
		if err := pkgfetcher.FetchFile(artifact, local); err != nil {
			return false, fmt.Errorf("fetching base rootfs: %w", err)
		}
	}

	if err := archive.ExtractFile(local, b.rootfsDir); err != nil {
		return false, fmt.Errorf("extracting base rootfs: %w", err)
	}
	return false, nil
}

// stepOsPackages resolves the requested OS packages against the recipe
// repositories, downloads and verifies them, and unpacks their payloads
// into the rootfs.
func (b *Builder) stepOsPackages() (bool, error) {
	packages := b.recipe.GetPackages()
	if len(packages) == 0 {
		return true, nil
	}
	log := logger.Logger()

	prov, err := provider.ForRecipe(b.recipe)
	if err != nil {
		return false, err
	}
	if err := prov.Init(b.recipe); err != nil {
		return false, fmt.Errorf("initializing provider %s: %w", prov.Name(), err)
	}

	all, err := prov.Packages()
	if err != nil {
		return false, err
	}
	requested, err := prov.MatchRequested(slice.Dedup(packages), all)
	if err != nil {
		return false, err
	}
	resolved, err := prov.Resolve(requested, all)
	if err != nil {
		return false, err
	}
	log.Infof("Resolved %d requested packages to %d installs", len(requested), len(resolved))

	destDir := filepath.Join(b.opts.CacheDir, "packages", b.buildID)
	artifacts := make([]pkgfetcher.Artifact, 0, len(resolved))
	for _, pkg := range resolved {
		artifacts = append(artifacts, pkgfetcher.Artifact{URL: pkg.URL, SHA256: pkg.Checksum})
	}
	if err := pkgfetcher.FetchArtifacts(artifacts, destDir, config.Workers()); err != nil {
		return false, fmt.Errorf("downloading packages: %w", err)
	}
	if err := prov.Validate(destDir); err != nil {
		return false, fmt.Errorf("validating downloaded packages: %w", err)
	}

	for _, pkg := range resolved {
		file := filepath.Join(destDir, path.Base(pkg.URL))
		if err := installPackage(file, b.rootfsDir); err != nil {
			return false, fmt.Errorf("installing %s: %w", pkg.Name, err)
		}
	}
	return false, nil
}

// stepPythonDeps resolves the pinned requirements manifest, stages the
// wheels into the image and queues an offline install command.
func (b *Builder) stepPythonDeps() (bool, error) {
	py := b.recipe.Python
	if py == nil {
		return true, nil
	}

	reqs, err := pydeps.ParseRequirementsFile(py.Requirements)
	if err != nil {
		return false, err
	}

	client := pydeps.NewIndexClient(py.IndexURL)
	artifacts, err := client.ResolveAll(reqs)
	if err != nil {
		return false, fmt.Errorf("resolving python dependencies: %w", err)
	}

	wheelsDir := filepath.Join(b.rootfsDir, "opt", "python-wheels")
	if err := pkgfetcher.FetchArtifacts(artifacts, wheelsDir, config.Workers()); err != nil {
		return false, fmt.Errorf("downloading python dependencies: %w", err)
	}

	workDir := b.recipe.SystemConfig.WorkDir
	if workDir == "" {
		workDir = "/"
	}
	manifestFinal := path.Join(workDir, "requirements.txt")
	manifestTarget := filepath.Join(b.rootfsDir, filepath.FromSlash(strings.TrimPrefix(manifestFinal, "/")))
	if err := copyFile(py.Requirements, manifestTarget, 0644); err != nil {
		return false, fmt.Errorf("staging requirements manifest: %w", err)
	}

	install := fmt.Sprintf("%s -m pip install --no-index --find-links /opt/python-wheels -r %s",
		py.Interpreter, manifestFinal)
	b.recipe.SystemConfig.RunCommands = append(b.recipe.SystemConfig.RunCommands, install)
	return false, nil
}

// stepSystemFiles places additional files, creates declared directories
// and registers recipe users in the rootfs.
func (b *Builder) stepSystemFiles() (bool, error) {
	sc := b.recipe.SystemConfig
	if len(sc.AdditionalFiles) == 0 && len(sc.Directories) == 0 && len(sc.Users) == 0 {
		return true, nil
	}

	for _, file := range sc.AdditionalFiles {
		mode, err := parseMode(file.Mode, 0644)
		if err != nil {
			return false, fmt.Errorf("file %s: %w", file.Final, err)
		}
		target := b.rootfsPath(file.Final)
		if err := copyLocal(file.Local, target, mode); err != nil {
			return false, fmt.Errorf("placing %s: %w", file.Final, err)
		}
	}

	for _, dir := range sc.Directories {
		mode, err := parseMode(dir.Mode, 0755)
		if err != nil {
			return false, fmt.Errorf("directory %s: %w", dir.Path, err)
		}
		target := dir.Path
		if !path.IsAbs(target) && sc.WorkDir != "" {
			target = path.Join(sc.WorkDir, target)
		}
		full := b.rootfsPath(target)
		if err := os.MkdirAll(full, mode); err != nil {
			return false, fmt.Errorf("creating directory %s: %w", target, err)
		}
		if err := os.Chmod(full, mode); err != nil {
			return false, fmt.Errorf("setting mode on %s: %w", target, err)
		}
	}

	if len(sc.Users) > 0 {
		if err := b.registerUsers(sc.Users); err != nil {
			return false, err
		}
	}
	return false, nil
}

// stepRunCommands executes recipe runCommands inside a chroot over the
// staged rootfs. Disabled runs are reported as skipped so unprivileged
// builds still produce an image.
func (b *Builder) stepRunCommands() (bool, error) {
	cmds := b.recipe.SystemConfig.RunCommands
	if len(cmds) == 0 {
		return true, nil
	}
	if !b.opts.RunCommands {
		logger.Logger().Warnf("Skipping %d run commands (chroot execution disabled)", len(cmds))
		return true, nil
	}

	env := chroot.NewEnv(b.rootfsDir)
	if err := env.Setup(); err != nil {
		return false, err
	}
	defer env.Cleanup()

	for _, cmd := range cmds {
		if err := env.Run(cmd); err != nil {
			return false, err
		}
	}
	return false, nil
}

// stepPackImage packs the staged rootfs into the requested image format.
func (b *Builder) stepPackImage(result *Result) (bool, error) {
	buildDir := filepath.Join(b.opts.WorkDir, b.buildID)

	switch b.recipe.Target.ImageType {
	case "raw":
		result.RawImagePath = filepath.Join(buildDir, b.recipe.GetImageName()+".img")
		if err := rawmaker.ExportRaw(b.rootfsDir, result.RawImagePath); err != nil {
			return false, err
		}
		return false, nil
	case "", "oci":
		// fallthrough below
	default:
		return false, fmt.Errorf("unsupported image type %q", b.recipe.Target.ImageType)
	}

	layoutDir := filepath.Join(buildDir, b.recipe.GetImageName())
	l, err := layer.Pack(b.rootfsDir, filepath.Join(layoutDir, "blobs", "sha256"), b.opts.Compression)
	if err != nil {
		return false, err
	}

	digest, err := ocimaker.Make(layoutDir, result.Ref, b.recipe.Target.Arch, time.Now().UTC(),
		b.runtimeConfig(), []*layer.Layer{l}, b.history)
	if err != nil {
		return false, err
	}

	result.LayoutDir = layoutDir
	result.ManifestDigest = digest
	return false, nil
}

// runtimeConfig maps the recipe system configuration onto the image
// runtime contract.
func (b *Builder) runtimeConfig() ocimaker.RuntimeConfig {
	sc := b.recipe.SystemConfig

	rt := ocimaker.RuntimeConfig{
		Entrypoint: sc.Entrypoint,
		Cmd:        sc.Cmd,
		WorkingDir: sc.WorkDir,
		Labels: map[string]string{
			"org.opencontainers.image.title":   b.recipe.GetSystemConfigName(),
			"org.opencontainers.image.version": b.recipe.Image.Version,
		},
	}
	for _, p := range sc.ExposedPorts {
		rt.ExposedPorts = append(rt.ExposedPorts, fmt.Sprintf("%d/%s", p.Port, p.Protocol))
	}

	names := make([]string, 0, len(sc.Env))
	for name := range sc.Env {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rt.Env = append(rt.Env, name+"="+sc.Env[name])
	}
	return rt
}

// registerUsers appends recipe users to the rootfs account databases.
// Passwords are set via chpasswd in the chroot phase since hashing
// belongs to the target's libc.
func (b *Builder) registerUsers(users []config.UserInfo) error {
	etc := filepath.Join(b.rootfsDir, "etc")
	if err := os.MkdirAll(etc, 0755); err != nil {
		return fmt.Errorf("creating etc: %w", err)
	}

	var passwd, group, shadow strings.Builder
	for _, u := range users {
		uid := u.UID
		if uid == 0 {
			uid = 1000
		}
		home := u.Home
		if home == "" {
			home = "/home/" + u.Name
		}
		userShell := u.Shell
		if userShell == "" {
			userShell = "/bin/sh"
		}

		fmt.Fprintf(&passwd, "%s:x:%d:%d::%s:%s\n", u.Name, uid, uid, home, userShell)
		fmt.Fprintf(&group, "%s:x:%d:\n", u.Name, uid)
		fmt.Fprintf(&shadow, "%s:*:19000:0:99999:7:::\n", u.Name)

		if err := os.MkdirAll(b.rootfsPath(home), 0750); err != nil {
			return fmt.Errorf("creating home for %s: %w", u.Name, err)
		}
		if u.Password != "" {
			b.recipe.SystemConfig.RunCommands = append(b.recipe.SystemConfig.RunCommands,
				fmt.Sprintf("echo %s | chpasswd", shellQuote(u.Name+":"+u.Password)))
		}
	}

	if err := appendFile(filepath.Join(etc, "passwd"), passwd.String(), 0644); err != nil {
		return err
	}
	if err := appendFile(filepath.Join(etc, "group"), group.String(), 0644); err != nil {
		return err
	}
	return appendFile(filepath.Join(etc, "shadow"), shadow.String(), 0640)
}

// shellQuote wraps s in single quotes so the shell takes it literally,
// including embedded quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func (b *Builder) rootfsPath(final string) string {
	return filepath.Join(b.rootfsDir, filepath.FromSlash(strings.TrimPrefix(final, "/")))
}

func installPackage(file, rootfsDir string) error {
	switch {
	case strings.HasSuffix(file, ".deb"):
		return debutils.ExtractDeb(file, rootfsDir)
	case strings.HasSuffix(file, ".rpm"):
		return rpmutils.ExtractRpm(file, rootfsDir)
	default:
		return fmt.Errorf("unknown package format: %s", file)
	}
}

func parseMode(mode string, fallback os.FileMode) (os.FileMode, error) {
	if mode == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseUint(mode, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid mode %q: %w", mode, err)
	}
	return os.FileMode(parsed), nil
}

func appendFile(path, content string, mode os.FileMode) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, mode)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return fmt.Errorf("appending to %s: %w", path, err)
	}
	return f.Close()
}

func copyLocal(local, target string, mode os.FileMode) error {
	info, err := os.Stat(local)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return copyDir(local, target, mode)
	}
	return copyFile(local, target, mode)
}

func copyFile(src, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, mode)
}

func copyDir(src, dst string, mode os.FileMode) error {
	return filepath.WalkDir(src, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(p, target, mode)
	})
}
