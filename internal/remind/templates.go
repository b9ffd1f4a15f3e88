package remind

// Template is a predefined reminder the user can instantiate with one tap.
type Template struct {
	ID          string
	Title       string
	Description string
	Category    Category
	Recurrence  RecurrenceConfig
	Icon        string
	Default     bool // part of the suggested starter set
}

// BuiltinTemplates is the stock template catalog.
var BuiltinTemplates = []Template{
	{
		ID:          "posture-30min",
		Title:       "Posture Check",
		Description: "Straighten your back and shoulders. Check your sitting position.",
		Category:    CategoryPosture,
		Recurrence:  RecurrenceConfig{Type: RecurInterval, IntervalMinutes: 30},
		Icon:        "posture",
		Default:     true,
	},
	{
		ID:          "vision-20-20-20",
		Title:       "20-20-20 Rule",
		Description: "Look at something 20 feet away for 20 seconds to rest your eyes.",
		Category:    CategoryVision,
		Recurrence:  RecurrenceConfig{Type: RecurInterval, IntervalMinutes: 20},
		Icon:        "eye",
		Default:     true,
	},
	{
		ID:          "jaw-exercises",
		Title:       "Jaw Exercise",
		Description: "Gentle jaw stretches and movements to relieve tension.",
		Category:    CategoryJaw,
		Recurrence: RecurrenceConfig{
			Type: RecurMultiple,
			MultipleTimes: []TimeSlot{
				{Hour: 9}, {Hour: 13}, {Hour: 18},
			},
		},
		Icon:    "jaw",
		Default: true,
	},
	{
		ID:          "hydration-hourly",
		Title:       "Drink Water",
		Description: "Stay hydrated! Take a sip of water.",
		Category:    CategoryHydration,
		Recurrence:  RecurrenceConfig{Type: RecurInterval, IntervalMinutes: 60},
		Icon:        "water",
	},
	{
		ID:          "breathing-exercise",
		Title:       "Deep Breathing",
		Description: "Take 5 deep breaths to reduce stress and improve focus.",
		Category:    CategoryBreathing,
		Recurrence: RecurrenceConfig{
			Type: RecurMultiple,
			MultipleTimes: []TimeSlot{
				{Hour: 10}, {Hour: 15}, {Hour: 20},
			},
		},
		Icon: "lungs",
	},
}

// TemplateByID looks up a builtin template.
func TemplateByID(id string) (Template, bool) {
	for _, t := range BuiltinTemplates {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}
