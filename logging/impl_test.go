package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.viam.com/test"
)

func newBufferLogger(name string, level Level) (Logger, *bytes.Buffer) {
	notStdout := &bytes.Buffer{}
	logger := &impl{name, NewAtomicLevelAt(level), true, []Appender{NewWriterAppender(notStdout)}}
	return logger, notStdout
}

func TestConsoleOutputFormat(t *testing.T) {
	logger, notStdout := newBufferLogger("impl", DEBUG)

	logger.Info("impl Info log")
	parts := strings.Split(strings.TrimSuffix(notStdout.String(), "\n"), "\t")
	test.That(t, len(parts), test.ShouldEqual, 5)
	test.That(t, len(parts[0]), test.ShouldEqual, len("2023-10-30T13:19:45.806Z"))
	test.That(t, parts[1], test.ShouldEqual, "INFO")
	test.That(t, parts[2], test.ShouldEqual, "impl")
	test.That(t, parts[3], test.ShouldStartWith, "logging/impl_test.go:")
	test.That(t, parts[4], test.ShouldEqual, "impl Info log")
	notStdout.Reset()

	logger.Infow("impl logw", "frame", 7, "stamp", "100ms")
	parts = strings.Split(strings.TrimSuffix(notStdout.String(), "\n"), "\t")
	test.That(t, len(parts), test.ShouldEqual, 6)
	fields := map[string]any{}
	test.That(t, json.Unmarshal([]byte(parts[5]), &fields), test.ShouldBeNil)
	test.That(t, fields, test.ShouldResemble, map[string]any{"frame": float64(7), "stamp": "100ms"})
}

func TestLevelFiltering(t *testing.T) {
	logger, notStdout := newBufferLogger("impl", WARN)

	logger.Debug("dropped")
	logger.Infof("dropped %d", 1)
	test.That(t, notStdout.Len(), test.ShouldEqual, 0)

	logger.Warnf("kept %d", 2)
	test.That(t, notStdout.String(), test.ShouldContainSubstring, "kept 2")

	logger.SetLevel(DEBUG)
	test.That(t, logger.GetLevel(), test.ShouldEqual, DEBUG)
	logger.Debug("now kept")
	test.That(t, notStdout.String(), test.ShouldContainSubstring, "now kept")
}

func TestSublogger(t *testing.T) {
	logger, notStdout := newBufferLogger("node", INFO)
	sub := logger.Sublogger("pipeline")

	sub.Error("boom")
	test.That(t, notStdout.String(), test.ShouldContainSubstring, "node.pipeline")
}

func TestUnpairedKey(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	logger.Infow("odd", "lonely")
	test.That(t, observed.Len(), test.ShouldEqual, 1)
	test.That(t, observed.All()[0].ContextMap()["lonely"], test.ShouldEqual, "unpaired log key")
}

func TestLevelFromString(t *testing.T) {
	for str, expected := range map[string]Level{
		"debug": DEBUG, "INFO": INFO, "warn": WARN, "Error": ERROR,
	} {
		level, err := LevelFromString(str)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, level, test.ShouldEqual, expected)
	}
	_, err := LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)

	var level Level
	test.That(t, json.Unmarshal([]byte(`"warn"`), &level), test.ShouldBeNil)
	test.That(t, level, test.ShouldEqual, WARN)
}
