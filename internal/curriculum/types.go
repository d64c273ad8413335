package curriculum

// Bundle is one module with its lessons and test questions, loaded from YAML.
type Bundle struct {
	Code    string   `yaml:"code"`
	Text    string   `yaml:"text"`
	Photo   string   `yaml:"photo"`
	Lessons []Lesson `yaml:"lessons"`
}

// Lesson is a lesson inside a bundle. Number defaults to its 1-based position.
type Lesson struct {
	Number    int        `yaml:"number"`
	Text      string     `yaml:"text"`
	Photo     string     `yaml:"photo"`
	VideoURL  string     `yaml:"video_url"`
	NotesURL  string     `yaml:"notes_url"`
	Questions []Question `yaml:"questions"`
}

// Question is a multiple-choice test question; Correct is 1-based.
type Question struct {
	Text    string   `yaml:"text"`
	Options []string `yaml:"options"`
	Correct int      `yaml:"correct"`
	Photo   string   `yaml:"photo"`
}

// ImportResult counts what Import created.
type ImportResult struct {
	Modules   int
	Lessons   int
	Questions int
}
