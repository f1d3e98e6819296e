package tui

import "github.com/charmbracelet/lipgloss"

// BaseColors defines global UI colors.
type BaseColors struct {
	Background string
	Foreground string
	Muted      string
	Accent     string
}

// MessageColors defines sender colors.
type MessageColors struct {
	Own    string
	Other  string
	System string
}

// ChromeColors defines non-content UI colors.
type ChromeColors struct {
	Header  string
	Footer  string
	Focus   string
	Divider string
	Error   string
}

// Theme defines the viewer's style tokens.
type Theme struct {
	Name    string
	Base    BaseColors
	Message MessageColors
	Chrome  ChromeColors
}

// DefaultTheme is the baseline dark palette.
var DefaultTheme = Theme{
	Name: "default",
	Base: BaseColors{
		Background: "234",
		Foreground: "252",
		Muted:      "245",
		Accent:     "75",
	},
	Message: MessageColors{
		Own:    "81",
		Other:  "147",
		System: "214",
	},
	Chrome: ChromeColors{
		Header:  "111",
		Footer:  "110",
		Focus:   "75",
		Divider: "203",
		Error:   "203",
	},
}

// HighContrastTheme favors legibility on low-quality terminals.
var HighContrastTheme = Theme{
	Name: "high-contrast",
	Base: BaseColors{
		Background: "16",
		Foreground: "231",
		Muted:      "250",
		Accent:     "51",
	},
	Message: MessageColors{
		Own:    "87",
		Other:  "225",
		System: "229",
	},
	Chrome: ChromeColors{
		Header:  "117",
		Footer:  "159",
		Focus:   "51",
		Divider: "196",
		Error:   "196",
	},
}

// Themes lists available palettes by name.
var Themes = map[string]Theme{
	"default":       DefaultTheme,
	"high-contrast": HighContrastTheme,
}

// ThemeByName returns the named theme, falling back to the default.
func ThemeByName(name string) Theme {
	if t, ok := Themes[name]; ok {
		return t
	}
	return DefaultTheme
}

type styles struct {
	base    lipgloss.Style
	muted   lipgloss.Style
	header  lipgloss.Style
	footer  lipgloss.Style
	own     lipgloss.Style
	other   lipgloss.Style
	system  lipgloss.Style
	focus   lipgloss.Style
	divider lipgloss.Style
	err     lipgloss.Style
}

func newStyles(t Theme) styles {
	color := func(c string) lipgloss.Style { return lipgloss.NewStyle().Foreground(lipgloss.Color(c)) }
	return styles{
		base:    lipgloss.NewStyle().Foreground(lipgloss.Color(t.Base.Foreground)).Background(lipgloss.Color(t.Base.Background)),
		muted:   color(t.Base.Muted),
		header:  color(t.Chrome.Header).Bold(true),
		footer:  color(t.Chrome.Footer),
		own:     color(t.Message.Own).Bold(true),
		other:   color(t.Message.Other).Bold(true),
		system:  color(t.Message.System).Italic(true),
		focus:   lipgloss.NewStyle().Reverse(true).Foreground(lipgloss.Color(t.Chrome.Focus)),
		divider: color(t.Chrome.Divider),
		err:     color(t.Chrome.Error),
	}
}
