package parsers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	pkgerrors "statement-reconciler/pkg/errors"
)

var defaultSeparators = []string{",", ";", " / ", "  ", " Ref", " IBAN"}

// Built-in format profiles for common bank exports
var (
	// GenericSemicolon is a plain semicolon export without a header block
	GenericSemicolon = FormatSpec{
		Name:                   "generic-semicolon",
		Description:            "Semicolon separated export, ISO numbers, header row first",
		Delimiter:              ";",
		HeaderLines:            0,
		Encoding:               EncodingAuto,
		Locale:                 "ISO",
		MarkerColumns:          []string{"date", "value date", "amount"},
		DateColumns:            []string{"value date", "date"},
		AmountColumn:           "amount",
		DescriptionColumns:     []string{"description"},
		CounterpartyColumn:     "counterparty",
		ReferenceColumn:        "reference",
		CounterpartySeparators: defaultSeparators,
	}

	// SwissBank has an eight line header block and separate debit/credit columns
	SwissBank = FormatSpec{
		Name:               "ch-bank",
		Description:        "Swiss export: 8 metadata lines, 1'234.56 amounts, Lastschrift/Gutschrift columns",
		Delimiter:          ";",
		HeaderLines:        8,
		Encoding:           EncodingAuto,
		Locale:             "CH",
		DateFormats:        []string{"02.01.2006", "02.01.06"},
		MarkerColumns:      []string{"Buchungsdatum", "Valuta", "Lastschrift", "Gutschrift"},
		DateColumns:        []string{"Valuta", "Buchungsdatum"},
		DebitColumn:        "Lastschrift",
		CreditColumn:       "Gutschrift",
		DescriptionColumns: []string{"Avisierungstext"},
		ReferenceColumn:    "Referenz",
		DefaultCurrency:    "CHF",
		BoilerplatePrefixes: []string{
			"Gutschrift von", "Gutschrift", "Belastung", "Zahlung an", "Zahlung von",
			"E-Banking Auftrag", "Dauerauftrag", "Lastschrift", "TWINT",
		},
		CounterpartySeparators: defaultSeparators,
	}

	// GermanBank has a two line header block and a signed amount column
	GermanBank = FormatSpec{
		Name:                   "de-bank",
		Description:            "German export: 2 metadata lines, 1.234,56 signed amounts",
		Delimiter:              ";",
		HeaderLines:            2,
		Encoding:               EncodingAuto,
		Locale:                 "DE",
		DateFormats:            []string{"02.01.2006", "02.01.06"},
		MarkerColumns:          []string{"Buchungstag", "Valutadatum", "Betrag"},
		DateColumns:            []string{"Valutadatum", "Buchungstag"},
		AmountColumn:           "Betrag",
		DescriptionColumns:     []string{"Buchungstext", "Verwendungszweck"},
		CounterpartyColumn:     "Auftraggeber / Empfänger",
		ReferenceColumn:        "Kundenreferenz",
		DefaultCurrency:        "EUR",
		BoilerplatePrefixes:    []string{"SEPA-Überweisung", "SEPA Lastschrift", "Gutschrift", "Überweisung"},
		CounterpartySeparators: defaultSeparators,
	}

	// ItalianBank has a five line header block and a signed amount column
	ItalianBank = FormatSpec{
		Name:               "it-bank",
		Description:        "Italian export: 5 metadata lines, 1.234,56 signed amounts",
		Delimiter:          ";",
		HeaderLines:        5,
		Encoding:           EncodingAuto,
		Locale:             "IT",
		DateFormats:        []string{"02/01/2006", "02/01/06", "02.01.2006"},
		MarkerColumns:      []string{"Data contabile", "Data valuta", "Importo"},
		DateColumns:        []string{"Data valuta", "Data contabile"},
		AmountColumn:       "Importo",
		DescriptionColumns: []string{"Descrizione"},
		ReferenceColumn:    "Riferimento",
		DefaultCurrency:    "EUR",
		BoilerplatePrefixes: []string{
			"Bonifico a vostro favore da", "Bonifico a favore di", "Bonifico da", "Bonifico",
			"Addebito SDD", "Pagamento", "Giroconto",
		},
		CounterpartySeparators: defaultSeparators,
	}
)

// BuiltinProfiles returns copies of the built-in formats
func BuiltinProfiles() []FormatSpec {
	return []FormatSpec{GenericSemicolon, SwissBank, GermanBank, ItalianBank}
}

// Registry holds format profiles by name
type Registry struct {
	profiles map[string]FormatSpec
	sources  map[string]string
}

// NewRegistry creates a registry preloaded with the built-in profiles
func NewRegistry() *Registry {
	r := &Registry{
		profiles: make(map[string]FormatSpec),
		sources:  make(map[string]string),
	}
	for _, spec := range BuiltinProfiles() {
		r.profiles[spec.Name] = spec
		r.sources[spec.Name] = "builtin"
	}
	return r
}

// Register validates and adds a profile, replacing one with the same name
func (r *Registry) Register(spec FormatSpec, source string) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	r.profiles[spec.Name] = spec
	r.sources[spec.Name] = source
	return nil
}

// Get returns a profile by case-insensitive name
func (r *Registry) Get(name string) (FormatSpec, bool) {
	if spec, ok := r.profiles[name]; ok {
		return spec, true
	}
	for key, spec := range r.profiles {
		if strings.EqualFold(key, strings.TrimSpace(name)) {
			return spec, true
		}
	}
	return FormatSpec{}, false
}

// Source tells where a profile came from: "builtin" or a file path
func (r *Registry) Source(name string) string {
	return r.sources[name]
}

// List returns all profiles sorted by name
func (r *Registry) List() []FormatSpec {
	out := make([]FormatSpec, 0, len(r.profiles))
	for _, spec := range r.profiles {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LoadFile reads profiles from a YAML file and registers them
func (r *Registry) LoadFile(fs afero.Fs, path string) error {
	specs, err := LoadProfiles(fs, path)
	if err != nil {
		return err
	}
	for _, spec := range specs {
		if err := r.Register(spec, path); err != nil {
			return pkgerrors.ConfigurationError(pkgerrors.CodeInvalidConfig, "profiles", path, err)
		}
	}
	return nil
}

// profileFile is the on-disk layout of a profiles YAML file
type profileFile struct {
	Profiles []FormatSpec `yaml:"profiles"`
}

// LoadProfiles reads format profiles from a YAML file
func LoadProfiles(fs afero.Fs, path string) ([]FormatSpec, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, pkgerrors.FileError(pkgerrors.CodeFileNotFound, path, err)
	}

	var file profileFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, pkgerrors.ConfigurationError(pkgerrors.CodeInvalidConfig, "profiles", path,
			fmt.Errorf("parsing profiles: %w", err))
	}
	if len(file.Profiles) == 0 {
		return nil, pkgerrors.ConfigurationError(pkgerrors.CodeMissingConfig, "profiles", path, nil).
			WithSuggestion("the file needs a top-level 'profiles:' list")
	}

	for i := range file.Profiles {
		if file.Profiles[i].Encoding == "" {
			file.Profiles[i].Encoding = EncodingAuto
		}
		if err := file.Profiles[i].Validate(); err != nil {
			return nil, pkgerrors.ConfigurationError(pkgerrors.CodeInvalidConfig, "profiles", path, err)
		}
	}
	return file.Profiles, nil
}

// SaveProfiles writes profiles as YAML
func SaveProfiles(fs afero.Fs, path string, specs []FormatSpec) error {
	data, err := yaml.Marshal(profileFile{Profiles: specs})
	if err != nil {
		return fmt.Errorf("marshaling profiles: %w", err)
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return pkgerrors.FileError(pkgerrors.CodeFilePermission, path, err)
	}
	return nil
}
