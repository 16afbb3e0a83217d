package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	. "github.com/smartystreets/goconvey/convey"
	"gopkg.in/natefinch/lumberjack.v2"

	"mint/internal/config"
)

func TestInit(t *testing.T) {
	Convey("日志初始化", t, func() {
		defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

		Convey("非法级别回退到 info", func() {
			So(Init(&config.LogConfig{Level: "loud", Format: "json"}), ShouldBeNil)
			So(zerolog.GlobalLevel(), ShouldEqual, zerolog.InfoLevel)
		})

		Convey("debug 级别", func() {
			So(Init(&config.LogConfig{Level: "debug", Format: "console"}), ShouldBeNil)
			So(zerolog.GlobalLevel(), ShouldEqual, zerolog.DebugLevel)
		})
	})
}

func TestNewWriter(t *testing.T) {
	Convey("输出目标", t, func() {
		So(newWriter(&config.LogConfig{Output: "stdout"}), ShouldEqual, os.Stdout)
		So(newWriter(&config.LogConfig{Output: "file"}), ShouldEqual, os.Stdout)

		path := filepath.Join(t.TempDir(), "mint.log")
		w := newWriter(&config.LogConfig{Output: "file", FilePath: path, MaxBackups: 3})
		lj, ok := w.(*lumberjack.Logger)
		So(ok, ShouldBeTrue)
		So(lj.Filename, ShouldEqual, path)
		So(lj.MaxSize, ShouldEqual, 100)
		So(lj.MaxBackups, ShouldEqual, 3)
	})
}
