package core

import "cbt-companion/pkg"

// Grounding technique ids. TechniqueSensory is the catalog fallback.
const (
	TechniqueSensory     = "5-4-3-2-1"
	TechniqueBreathing   = "breathing"
	TechniqueBodyScan    = "body_scan"
	TechniqueOrientation = "orientation"
	TechniqueTemperature = "temperature"
)

// GroundingCatalog is the fixed, read-only library of grounding exercises.
type GroundingCatalog struct {
	exercises map[string]pkg.GroundingExercise
}

// NewGroundingCatalog builds the static catalog.
func NewGroundingCatalog() *GroundingCatalog {
	entries := []pkg.GroundingExercise{
		{
			ID:                       TechniqueSensory,
			DisplayName:              "5-4-3-2-1 Sensory Grounding",
			EstimatedDurationSeconds: 300,
			Instructions: `Let's bring you back to the present moment. Take your time with this.

**Look around you right now and notice:**
- **5 things you can see** (describe them to yourself - colors, shapes, details)
- **4 things you can touch** (notice textures - smooth, rough, warm, cold)
- **3 things you can hear** (listen carefully - near and far sounds)
- **2 things you can smell** (or think of your 2 favorite scents)
- **1 thing you can taste** (or think of your favorite taste)

Take slow, gentle breaths as you do this. There's no rush.

Tell me when you're ready to continue, or if you'd like to stop here.`,
			FollowUpPrompt: "How do you feel now? Even a small shift is meaningful.",
		},
		{
			ID:                       TechniqueBreathing,
			DisplayName:              "Paced Breathing",
			EstimatedDurationSeconds: 180,
			Instructions: `Let's slow things down with some paced breathing.

**Here's what to do:**
1. Breathe in slowly through your nose for **4 counts** (1... 2... 3... 4...)
2. Hold gently for **4 counts**
3. Breathe out slowly through your mouth for **6 counts** (1... 2... 3... 4... 5... 6...)
4. Pause for **2 counts**
5. Repeat 5-10 times

You can place one hand on your chest and one on your belly if that helps.

The exhale being longer than the inhale helps activate your calm-down system.

Let me know when you've done a few cycles, or if you need to adjust the pace.`,
			FollowUpPrompt: "Did the breathing help at all? Sometimes it takes a few minutes to notice a shift.",
		},
		{
			ID:                       TechniqueBodyScan,
			DisplayName:              "Quick Body Scan",
			EstimatedDurationSeconds: 240,
			Instructions: `Let's check in with your body, gently and without judgment.

**Starting from your head, slowly move your attention down:**
- Notice your **face** - any tension in your jaw, forehead, or around your eyes?
- Your **shoulders** - are they tight? Can you let them drop a little?
- Your **chest** - what does your breathing feel like right now?
- Your **stomach** - any tightness or butterflies?
- Your **hands** - are they clenched? Can you loosen them?
- Your **legs and feet** - notice where they're touching the ground or chair

You don't have to change anything - just notice. Breathe gently.

If you find tension, imagine breathing into that spot and letting it soften a little.

Tell me what you notice, or just let me know when you're done.`,
			FollowUpPrompt: "What did you notice? Sometimes just paying attention helps.",
		},
		{
			ID:                       TechniqueOrientation,
			DisplayName:              "Present Moment Orientation",
			EstimatedDurationSeconds: 120,
			Instructions: `Let's orient to the present moment.

**Answer these questions (out loud or in your mind):**
- What is today's date?
- Where are you right now? (Describe the room/place)
- What are you sitting or standing on?
- What time of day is it?
- Name 3 objects you can see right now

**Remind yourself:**
"Right now, in this moment, I am safe."
"This feeling is uncomfortable, but I am not in danger."

Take a slow breath.

Let me know when you're ready.`,
			FollowUpPrompt: "Does it help to remember where and when you are right now?",
		},
		{
			ID:                       TechniqueTemperature,
			DisplayName:              "Temperature Shift",
			EstimatedDurationSeconds: 60,
			Instructions: `Sometimes a quick physical sensation can help reset.

**Try one of these:**
- Hold an ice cube or run cold water on your wrists
- Splash cold water on your face
- Hold a warm cup of tea or coffee
- Wrap yourself in a soft blanket

Physical temperature changes can interrupt the distress cycle.

Pick what feels doable right now, and notice how it feels.

Let me know how it goes.`,
			FollowUpPrompt: "Did the temperature change help shift your focus at all?",
		},
	}

	m := make(map[string]pkg.GroundingExercise, len(entries))
	for _, e := range entries {
		m[e.ID] = e
	}
	return &GroundingCatalog{exercises: m}
}

// GetExercise looks up an exercise by technique id, falling back to the
// 5-4-3-2-1 entry for unknown ids. When the brief carries coping statements,
// the first one is appended to the follow-up prompt.
func (c *GroundingCatalog) GetExercise(id string, brief *pkg.TherapistBrief) pkg.GroundingExercise {
	ex, ok := c.exercises[id]
	if !ok {
		ex = c.exercises[TechniqueSensory]
	}
	if brief != nil && len(brief.Language.CopingStatements) > 0 {
		ex.FollowUpPrompt += "\n\nRemember: " + brief.Language.CopingStatements[0]
	}
	return ex
}
