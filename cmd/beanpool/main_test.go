package main

import (
	"bytes"
	"testing"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/suite"

	"github.com/ajitpratap0/beanpool/pkg/testutil"
)

const containerYAML = `
name: container
logging:
  level: error
defaults:
  max_size: 2
  access_timeout: 5s
  close_timeout: 1s
  sweep_interval: 0s
deployments:
  - id: orders
    name: Orders
  - id: reports
    bean: slow-worker
    max_size: 4
    strict_pooling: false
`

type cliSuite struct {
	testutil.ContainerSuite
	config string
}

func TestCLISuite(t *testing.T) {
	suite.Run(t, new(cliSuite))
}

func (s *cliSuite) SetupSuite() {
	s.ContainerSuite.SetupSuite()
	s.config = s.WriteContainer("container.yaml", containerYAML)
}

func (s *cliSuite) execute(args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func (s *cliSuite) TestVersion() {
	out, err := s.execute("version")
	s.Require().NoError(err)
	s.Contains(out, "Beanpool v"+version)
}

func (s *cliSuite) TestValidatePrintsResolvedPolicies() {
	out, err := s.execute("validate", "--config", s.config)
	s.Require().NoError(err)

	var doc struct {
		Container   string `json:"container"`
		Deployments []struct {
			ID     string `json:"id"`
			Name   string `json:"name"`
			Policy struct {
				MaxSize       int  `json:"max_size"`
				StrictPooling bool `json:"strict_pooling"`
			} `json:"policy"`
		} `json:"deployments"`
	}
	s.Require().NoError(gojson.Unmarshal([]byte(out), &doc))
	s.Equal("container", doc.Container)
	s.Require().Len(doc.Deployments, 2)
	s.Equal("Orders", doc.Deployments[0].Name)
	s.Equal(2, doc.Deployments[0].Policy.MaxSize)
	s.True(doc.Deployments[0].Policy.StrictPooling)
	s.Equal(4, doc.Deployments[1].Policy.MaxSize)
	s.False(doc.Deployments[1].Policy.StrictPooling)
}

func (s *cliSuite) TestValidateRequiresConfig() {
	s.T().Setenv("BEANPOOL_CONFIG", "")
	_, err := s.execute("validate")
	s.Error(err)
}

func (s *cliSuite) TestValidateRejectsBadPolicy() {
	path := s.WriteContainer("negative.yaml", `
defaults:
  callback_threads: -1
deployments:
  - id: orders
`)
	_, err := s.execute("validate", "--config", path)
	s.Error(err)
}

func (s *cliSuite) TestConfigFromEnvironment() {
	s.T().Setenv("BEANPOOL_CONFIG", s.config)
	out, err := s.execute("validate")
	s.Require().NoError(err)
	s.Contains(out, `"orders"`)
}

func (s *cliSuite) TestSimulate() {
	testutil.SkipInShort(s.T())

	out, err := s.execute("simulate",
		"--config", s.config,
		"--workers", "4",
		"--invocations", "10",
		"--work-time", "0s")
	s.Require().NoError(err)

	var report struct {
		Invocations int64 `json:"invocations"`
		Succeeded   int64 `json:"succeeded"`
		Pool        struct {
			Capacity int `json:"capacity"`
			Live     int `json:"live"`
		} `json:"pool"`
	}
	s.Require().NoError(gojson.Unmarshal([]byte(out), &report))
	s.Equal(int64(40), report.Invocations)
	s.Equal(int64(40), report.Succeeded)
	s.Equal(2, report.Pool.Capacity)
	s.LessOrEqual(report.Pool.Live, 2)
}

func (s *cliSuite) TestSimulateUnknownDeployment() {
	_, err := s.execute("simulate", "--config", s.config, "--deployment", "missing")
	s.Error(err)
}
