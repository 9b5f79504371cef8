package main

import (
	"fmt"
	"os"
	"strings"

	"lexmeet/internal/core/services"

	"gopkg.in/yaml.v2"
)

type ruleBreak struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// ruleFile is the YAML form of a booking rule, filled into the rule form field by field.
type ruleFile struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Days        []string    `yaml:"days"`
	StartTime   string      `yaml:"start_time"`
	EndTime     string      `yaml:"end_time"`
	StartDate   string      `yaml:"start_date"`
	EndDate     string      `yaml:"end_date"`
	Priority    int         `yaml:"priority"`
	Breaks      []ruleBreak `yaml:"breaks"`
}

func loadRuleFile(path string) (ruleFile, error) {
	var rf ruleFile
	data, err := os.ReadFile(path)
	if err != nil {
		return rf, fmt.Errorf("read rule file: %w", err)
	}
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return rf, fmt.Errorf("parse rule file: %w", err)
	}
	return rf, nil
}

func (rf ruleFile) fill(form *services.BookingRuleForm) error {
	form.Update(func(in *services.BookingRuleInput) {
		in.RuleName = rf.Name
		in.Description = rf.Description
		in.StartTime = rf.StartTime
		in.EndTime = rf.EndTime
		in.StartDate = rf.StartDate
		in.EndDate = rf.EndDate
		if rf.Priority > 0 {
			in.Priority = rf.Priority
		}
	})
	for _, day := range rf.Days {
		form.ToggleDay(strings.ToLower(day))
	}
	for _, b := range rf.Breaks {
		if err := form.SetBreak(form.AddBreak(), b.Start, b.End); err != nil {
			return err
		}
	}
	return nil
}
