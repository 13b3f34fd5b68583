package version

import "runtime/debug"

// Version 在构建时通过 -ldflags 设置，`go install` 安装时从构建信息中读取
var Version = "devel"

// Commit 是构建时的 VCS 修订号，未知时为空
var Commit = ""

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if v := info.Main.Version; v != "" && v != "(devel)" && Version == "devel" {
		Version = v
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && Commit == "" {
			Commit = s.Value
			if len(Commit) > 12 {
				Commit = Commit[:12]
			}
		}
	}
}
