package identity

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cucumber/godog"
)

type cipherScenario struct {
	pattern string
	dummy   string
	err     error
}

func (s *cipherScenario) theShiftPattern(pattern string) error {
	s.pattern = pattern
	return nil
}

func (s *cipherScenario) iObfuscate(id string) error {
	s.dummy, s.err = Obfuscate(id, s.pattern)
	return nil
}

func (s *cipherScenario) theDummyIdentifierIs(want string) error {
	if s.err != nil {
		return s.err
	}
	if s.dummy != want {
		return fmt.Errorf("expected dummy %q, got %q", want, s.dummy)
	}
	return nil
}

func (s *cipherScenario) revealingItGivesBack(want string) error {
	got, err := Reveal(s.dummy, s.pattern)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("expected %q after reveal, got %q", want, got)
	}
	return nil
}

func (s *cipherScenario) theCipherRejectsTheInput() error {
	if !errors.Is(s.err, ErrInvalidInput) {
		return fmt.Errorf("expected ErrInvalidInput, got %v", s.err)
	}
	return nil
}

func TestCipherFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeCipherScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

func initializeCipherScenario(sc *godog.ScenarioContext) {
	s := &cipherScenario{}

	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		*s = cipherScenario{}
		return ctx, nil
	})

	sc.Step(`^the shift pattern "([^"]*)"$`, s.theShiftPattern)
	sc.Step(`^I obfuscate "([^"]*)"$`, s.iObfuscate)
	sc.Step(`^the dummy identifier is "([^"]*)"$`, s.theDummyIdentifierIs)
	sc.Step(`^revealing it gives back "([^"]*)"$`, s.revealingItGivesBack)
	sc.Step(`^the cipher rejects the input$`, s.theCipherRejectsTheInput)
}
