package cmd_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/retrixe/glassarch/internal/cmd"
)

type CmdSuite struct {
	suite.Suite

	runner *cmd.Exec
}

func TestCmdSuite(t *testing.T) {
	suite.Run(t, new(CmdSuite))
}

func (suite *CmdSuite) SetupTest() {
	suite.runner = cmd.NewExec(nil)
}

func (suite *CmdSuite) TestRun() {
	type args struct {
		name string
		args []string
	}

	tests := []struct {
		name      string
		args      args
		want      string
		wantErr   bool
		errString string
	}{
		{
			"true",
			args{"true", []string{}},
			"",
			false,
			"",
		},
		{
			"false",
			args{"false", []string{}},
			"",
			true,
			"false: exit status 1",
		},
		{
			"echo",
			args{"echo", []string{"hello", "world"}},
			"hello world\n",
			false,
			"",
		},
		{
			"stderr",
			args{"sh", []string{"-c", "echo nope >&2; exit 3"}},
			"",
			true,
			"sh -c echo nope >&2; exit 3: exit status 3\noutput: nope",
		},
		{
			"missing binary",
			args{"/nonexistent/glassarch-tool", []string{}},
			"",
			true,
			"no such file or directory",
		},
	}

	for _, t := range tests {
		suite.Run(t.name, func() {
			out, err := suite.runner.Run(context.Background(), t.args.name, t.args.args...)
			if t.wantErr {
				suite.Require().Error(err)
				suite.Assert().Contains(err.Error(), t.errString)
			} else {
				suite.Require().NoError(err)
				suite.Assert().Equal(t.want, out)
			}
		})
	}
}

func (suite *CmdSuite) TestExitCode() {
	_, err := suite.runner.Run(context.Background(), "sh", "-c", "exit 42")

	var exitErr *cmd.ExitError
	suite.Require().True(errors.As(err, &exitErr))
	suite.Assert().Equal(42, exitErr.ExitCode)
	suite.Assert().Equal([]string{"sh", "-c", "exit 42"}, exitErr.Args)
}

func (suite *CmdSuite) TestStderrIsBounded() {
	_, err := suite.runner.Run(context.Background(), "sh", "-c", "head -c 10000 /dev/zero | tr '\\0' x >&2; exit 1")

	var exitErr *cmd.ExitError
	suite.Require().True(errors.As(err, &exitErr))
	suite.Assert().Len(exitErr.Stderr, cmd.MaxStderrLen)
}

func (suite *CmdSuite) TestRunWithStdin() {
	out, err := suite.runner.RunWithStdin(context.Background(), strings.NewReader("secret\n"), "cat")
	suite.Require().NoError(err)
	suite.Assert().Equal("secret\n", out)
}

func (suite *CmdSuite) TestContextCancel() {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := suite.runner.Run(ctx, "sleep", "10")
	suite.Require().Error(err)
	suite.Assert().ErrorIs(err, context.DeadlineExceeded)
}

func (suite *CmdSuite) TestLookPath() {
	suite.Assert().NoError(cmd.LookPath("sh", "true"))

	err := cmd.LookPath("sh", "glassarch-missing-a", "glassarch-missing-b")
	suite.Require().Error(err)
	suite.Assert().Contains(err.Error(), `"glassarch-missing-a"`)
	suite.Assert().Contains(err.Error(), `"glassarch-missing-b"`)
}

func (suite *CmdSuite) TestRecorder() {
	rec := &cmd.Recorder{
		Outputs: map[string]string{"cryptsetup luksUUID": "1234\n"},
		Errors:  map[string]error{"mkfs.xfs": errors.New("boom")},
	}

	out, err := rec.Run(context.Background(), "cryptsetup", "luksUUID", "/dev/sda2")
	suite.Require().NoError(err)
	suite.Assert().Equal("1234\n", out)

	_, err = rec.RunWithStdin(context.Background(), strings.NewReader("pw"), "cryptsetup", "open", "/dev/sda2", "cryptroot")
	suite.Require().NoError(err)

	_, err = rec.Run(context.Background(), "mkfs.xfs", "/dev/sda2")
	suite.Require().Error(err)

	suite.Assert().Equal([]string{
		"cryptsetup luksUUID /dev/sda2",
		"cryptsetup open /dev/sda2 cryptroot",
		"mkfs.xfs /dev/sda2",
	}, rec.Lines())
	suite.Assert().Equal("pw", rec.Invocations()[1].Stdin)
}

func (suite *CmdSuite) TestRecorderLongestPrefixWins() {
	rec := &cmd.Recorder{
		Outputs: map[string]string{
			"cryptsetup":          "generic\n",
			"cryptsetup luksUUID": "1234\n",
			"cryptsetup luks":     "luks\n",
		},
		Errors: map[string]error{
			"cryptsetup close":           errors.New("busy"),
			"cryptsetup close cryptroot": errors.New("still in use"),
		},
	}

	// map iteration order varies, so look up repeatedly
	for range 20 {
		out, err := rec.Run(context.Background(), "cryptsetup", "luksUUID", "/dev/sda2")
		suite.Require().NoError(err)
		suite.Assert().Equal("1234\n", out)

		out, err = rec.Run(context.Background(), "cryptsetup", "status", "cryptroot")
		suite.Require().NoError(err)
		suite.Assert().Equal("generic\n", out)

		_, err = rec.Run(context.Background(), "cryptsetup", "close", "cryptroot")
		suite.Require().Error(err)
		suite.Assert().Contains(err.Error(), "still in use")
	}

	out, err := rec.Run(context.Background(), "mkfs.ext4", "/dev/sda2")
	suite.Require().NoError(err)
	suite.Assert().Empty(out)
}
