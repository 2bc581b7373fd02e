// 包 version：进程版本信息，构建时通过 -ldflags 注入
package version

var (
	Version = "dev"
	Commit  = ""
)

// Get：返回展示用版本串
func Get() string {
	if Commit == "" {
		return Version
	}
	return Version + "+" + Commit
}
