// CLAUDE:SUMMARY User profile (personal fields, education, experience, resume) loaded from JSON/YAML files or the key-value store; resume payload decoding and PDF validation.
// Package profile is the structured input of a fill run. The engine reads
// it and never writes it back during a run.
package profile

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/formfill/dom"
	"github.com/hazyhaar/formfill/kvstore"
)

// Keys of the key-value store holding the profile parts.
const (
	KeyUserProfile = "userProfile"
	KeyEducation   = "education"
	KeyExperience  = "experience"
	KeyResume      = "resume"
)

// Profile is the user's data.
type Profile struct {
	// UserProfile maps classify.Kind values (firstName, email, ...) to
	// the user's answer.
	UserProfile map[string]string `json:"userProfile" yaml:"userProfile"`
	Education   []Education       `json:"education" yaml:"education"`
	Experience  []Experience      `json:"experience" yaml:"experience"`
	Resume      *Resume           `json:"resume,omitempty" yaml:"resume,omitempty"`
}

// Education is one school entry. Start and End are years or YYYY-MM.
type Education struct {
	School string `json:"school" yaml:"school"`
	Degree string `json:"degree" yaml:"degree"`
	Start  string `json:"start" yaml:"start"`
	End    string `json:"end" yaml:"end"`
}

// Experience is one employment entry. Start and End are YYYY-MM.
type Experience struct {
	Company     string `json:"company" yaml:"company"`
	Title       string `json:"title" yaml:"title"`
	Start       string `json:"start" yaml:"start"`
	End         string `json:"end" yaml:"end"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Value returns the profile value for kind, trimmed.
func (p *Profile) Value(kind string) string {
	if p == nil || p.UserProfile == nil {
		return ""
	}
	return strings.TrimSpace(p.UserProfile[kind])
}

// Public returns the personal fields without the resume, the form sent to
// the Oracle.
func (p *Profile) Public() map[string]string {
	out := make(map[string]string, len(p.UserProfile)+1)
	for k, v := range p.UserProfile {
		if v != "" {
			out[k] = v
		}
	}
	if p.Resume != nil && p.Resume.Name != "" {
		out["resumeName"] = p.Resume.Name
	}
	return out
}

// Resume is an attached file. On the wire Data is a data URL
// ("data:application/pdf;base64,...") or plain base64.
type Resume struct {
	Name string
	MIME string
	Data []byte
}

type resumeWire struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
	Data string `json:"data" yaml:"data"`
}

func (r Resume) MarshalJSON() ([]byte, error) {
	return json.Marshal(resumeWire{
		Name: r.Name,
		Type: r.MIME,
		Data: "data:" + r.MIME + ";base64," + base64.StdEncoding.EncodeToString(r.Data),
	})
}

func (r *Resume) UnmarshalJSON(b []byte) error {
	var w resumeWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	return r.fromWire(w)
}

func (r *Resume) UnmarshalYAML(n *yaml.Node) error {
	var w resumeWire
	if err := n.Decode(&w); err != nil {
		return err
	}
	return r.fromWire(w)
}

func (r *Resume) fromWire(w resumeWire) error {
	mime, data, err := DecodeDataURL(w.Data)
	if err != nil {
		return fmt.Errorf("profile: resume %q: %w", w.Name, err)
	}
	if w.Type != "" {
		mime = w.Type
	}
	if mime == "" {
		mime = mimeFromName(w.Name)
	}
	*r = Resume{Name: w.Name, MIME: mime, Data: data}
	return nil
}

// DecodeDataURL decodes "data:<mime>;base64,<payload>" or bare base64.
func DecodeDataURL(s string) (mime string, data []byte, err error) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		head, payload, found := strings.Cut(rest, ",")
		if !found {
			return "", nil, errors.New("malformed data url")
		}
		if !strings.HasSuffix(head, ";base64") {
			return "", nil, errors.New("data url is not base64")
		}
		mime = strings.TrimSuffix(head, ";base64")
		s = payload
	}
	data, err = base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", nil, fmt.Errorf("base64: %w", err)
	}
	return mime, data, nil
}

func mimeFromName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt":
		return "text/plain"
	}
	return "application/octet-stream"
}

// IsPDF reports whether the resume claims to be a PDF.
func (r *Resume) IsPDF() bool {
	return r.MIME == "application/pdf" || strings.EqualFold(filepath.Ext(r.Name), ".pdf")
}

// Validate rejects an empty payload and a PDF that does not parse.
func (r *Resume) Validate() error {
	if r == nil || len(r.Data) == 0 {
		return errors.New("profile: resume is empty")
	}
	if !r.IsPDF() {
		return nil
	}
	if _, err := api.ReadValidateAndOptimize(bytes.NewReader(r.Data), model.NewDefaultConfiguration()); err != nil {
		return fmt.Errorf("profile: resume %q is not a valid PDF: %w", r.Name, err)
	}
	return nil
}

// File returns the payload for a file input.
func (r *Resume) File() dom.File {
	return dom.File{Name: r.Name, MIME: r.MIME, Data: r.Data}
}

// Load reads a profile file; .yaml and .yml are YAML, anything else JSON.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profile: read: %w", err)
	}
	var p Profile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &p)
	default:
		err = json.Unmarshal(data, &p)
	}
	if err != nil {
		return nil, fmt.Errorf("profile: parse %s: %w", path, err)
	}
	if p.UserProfile == nil {
		p.UserProfile = map[string]string{}
	}
	return &p, nil
}

// FromStore reads the profile parts from s. Missing parts are empty.
func FromStore(ctx context.Context, s kvstore.Store) (*Profile, error) {
	p := &Profile{UserProfile: map[string]string{}}
	parts := []struct {
		key string
		v   any
	}{
		{KeyUserProfile, &p.UserProfile},
		{KeyEducation, &p.Education},
		{KeyExperience, &p.Experience},
		{KeyResume, &p.Resume},
	}
	for _, part := range parts {
		if _, err := kvstore.GetJSON(ctx, s, part.key, part.v); err != nil {
			return nil, fmt.Errorf("profile: %s: %w", part.key, err)
		}
	}
	if p.UserProfile == nil {
		p.UserProfile = map[string]string{}
	}
	return p, nil
}

// Save writes the profile parts to s in one Set.
func Save(ctx context.Context, s kvstore.Store, p *Profile) error {
	values := make(map[string]json.RawMessage, 4)
	parts := map[string]any{
		KeyUserProfile: p.UserProfile,
		KeyEducation:   p.Education,
		KeyExperience:  p.Experience,
		KeyResume:      p.Resume,
	}
	for k, v := range parts {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("profile: encode %s: %w", k, err)
		}
		values[k] = b
	}
	if err := s.Set(ctx, values); err != nil {
		return fmt.Errorf("profile: save: %w", err)
	}
	return nil
}
