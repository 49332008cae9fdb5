package submission

import (
	"fmt"
	"os"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/shouldiwash/shouldiwash/pkg/types"
	"gopkg.in/yaml.v3"
)

// DefaultForm is the form before anything is typed.
func DefaultForm() types.SubmissionForm {
	return types.SubmissionForm{
		SolarPanels: "1",
	}
}

// LoadDefaults reads household defaults from a YAML file. Keys that are not
// present keep their value from DefaultForm.
//
//	postCode: SW1A 1AA
//	solarPanels: "10"
//	panelOrientation: "180"
//	panelTilt: "35"
//	washingMachine: true
func LoadDefaults(path string) (types.SubmissionForm, error) {
	form := DefaultForm()
	data, err := os.ReadFile(path)
	if err != nil {
		return form, fmt.Errorf("failed to read form defaults: %w", err)
	}
	if err := yaml.Unmarshal(data, &form); err != nil {
		return form, fmt.Errorf("failed to parse form defaults: %w", err)
	}
	return form, nil
}

// Configured sets up a Submitter with form defaults from flags.
func Configured(api API) *Submitter {
	path := lflag.String("form-defaults", "", "Optional YAML file with household defaults for the submission form")
	timezone := lflag.String("timezone", "", "IANA time zone submission dates are entered in (defaults to the local zone)")

	s := &Submitter{api: api, defaults: DefaultForm(), location: time.Local}

	lflag.Do(func() {
		if *timezone != "" {
			loc, err := time.LoadLocation(*timezone)
			if err != nil {
				panic(fmt.Sprintf("invalid timezone %q: %v", *timezone, err))
			}
			s.location = loc
		}
		if *path == "" {
			return
		}
		form, err := LoadDefaults(*path)
		if err != nil {
			panic(err.Error())
		}
		s.defaults = form
	})

	return s
}

// Override holds values given explicitly for a single run. Empty strings and
// nil appliance choices keep the value from the defaults.
type Override struct {
	PostCode         string
	SolarPanels      string
	PanelOrientation string
	PanelTilt        string
	Date             string
	WashingMachine   *bool
	TumbleDryer      *bool
}

// Merge overlays the set fields of o onto base.
func Merge(base types.SubmissionForm, o Override) types.SubmissionForm {
	if o.PostCode != "" {
		base.PostCode = o.PostCode
	}
	if o.SolarPanels != "" {
		base.SolarPanels = o.SolarPanels
	}
	if o.PanelOrientation != "" {
		base.PanelOrientation = o.PanelOrientation
	}
	if o.PanelTilt != "" {
		base.PanelTilt = o.PanelTilt
	}
	if o.Date != "" {
		base.Date = o.Date
	}
	if o.WashingMachine != nil {
		base.WashingMachine = *o.WashingMachine
	}
	if o.TumbleDryer != nil {
		base.TumbleDryer = *o.TumbleDryer
	}
	return base
}
