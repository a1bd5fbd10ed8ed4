package core

// flow_texts.go holds the fixed wording of the structured skills flow:
// consent gate, main menu, per-step skill prompts, coping instructions, and
// the psychoeducation cards.

const consentMessage = `Welcome! I'm a CBT skills-practice companion.

**Before we start, please understand:**
- I help you practice CBT skills between therapy sessions
- I am NOT a therapist, doctor, or emergency service
- I don't diagnose or give medical advice
- If you're in crisis, contact a crisis line or emergency services

Everything you share here is meant to support the work you do with your therapist.

Do you understand and agree to continue? (Yes/No)`

const menuMessage = `**What would you like to work on?**

1. **Thought Record** - examine and reframe a difficult thought
2. **Behavioral Activation** - plan a small mood-lifting activity
3. **Exposure Practice** - face a fear step by step
4. **Coping Skills** - breathing, grounding, relaxation
5. **Learn** - short CBT concept explainers
6. **Review Progress** - see what you've completed

Pick a number or just tell me what you need.`

var thoughtRecordPrompts = map[string]string{
	"situation":           "Let's do a thought record together.\n\n**Step 1 - Situation:** What happened? Describe the situation briefly (where, when, who was involved).",
	"automatic_thought":   "**Step 2 - Automatic Thought:** What went through your mind in that moment? Write the thought as it appeared, word for word if you can.",
	"emotions":            "**Step 3 - Emotions:** What did you feel, and how strong was it? (e.g., \"anxious 8/10, ashamed 6/10\")",
	"evidence_for":        "**Step 4 - Evidence For:** What facts support this thought? Stick to facts, not interpretations.",
	"evidence_against":    "**Step 5 - Evidence Against:** What facts don't fit this thought? Is there anything it ignores or exaggerates?",
	"alternative_thought": "**Step 6 - Alternative Thought:** Looking at both sides of the evidence, what's a more balanced way to see this?",
	"rerate":              "**Step 7 - Re-rate:** With that alternative thought in mind, how strong are those emotions now? (0-10)",
}

var activationPrompts = map[string]string{
	"identify":   "Let's plan an activity that could lift your mood a little.\n\n**Step 1:** What's one small activity you've been avoiding or would normally enjoy? Keep it small - a walk, a call, ten minutes of something.",
	"break_down": "**Step 2:** Let's break it down. What's the very first, smallest step of that activity?",
	"schedule":   "**Step 3:** When exactly will you do it? Pick a specific day and time.",
	"if_then":    "**Step 4:** Obstacles happen. Complete this: \"If [obstacle], then I will [backup plan].\"",
	"confirm":    "**Step 5:** To confirm - you're committing to this activity at the time you chose. Ready to lock it in? (Yes, or tell me what to adjust.)",
}

var exposurePrompts = map[string]string{
	"check_suitability": "Exposure practice means gradually facing something you fear so it loses its grip.\n\nFirst, a check: what is the fear or situation you want to work on? (If it relates to a traumatic experience, that work belongs with your therapist.)",
	"build_hierarchy":   "**Build your ladder:** List 3-5 versions of facing this fear, from easiest to hardest. Rate each 0-100 for how anxious it would make you.",
	"select_target":     "**Pick a target:** Which rung of your ladder will you try first? Choose one in the 30-50 anxiety range - challenging but doable.",
	"prediction":        "**Prediction:** Before you try it - what do you predict will happen? How bad will it be (0-100), and how will you cope?",
	"debrief":           "**Debrief:** After you try it (now or later), tell me: what actually happened? How did it compare to your prediction?",
}

const copingMenuMessage = `**Choose a coping skill:**

1. **Breathing** (4-7-8 technique)
2. **Grounding** (5-4-3-2-1 senses)
3. **Muscle Relaxation** (progressive)
4. **Urge Surfing** (ride the wave)

Which one would help right now?`

var copingInstructions = map[string]string{
	"breathing": `**4-7-8 Breathing:**

1. Breathe in through your nose for **4 counts**
2. Hold for **7 counts**
3. Breathe out slowly through your mouth for **8 counts**
4. Repeat 4 times

The long exhale tells your nervous system it's safe to settle. Take your time.`,

	"grounding": `**5-4-3-2-1 Grounding:**

Look around and name:
- **5** things you can see
- **4** things you can touch
- **3** things you can hear
- **2** things you can smell
- **1** thing you can taste

Go slowly. This anchors you in the present moment.`,

	"muscle_relaxation": `**Progressive Muscle Relaxation:**

Working from your feet up, for each muscle group:
1. Tense the muscles for **5 seconds**
2. Release and notice the difference for **10 seconds**

Feet - legs - stomach - hands - arms - shoulders - face.

The contrast between tension and release teaches your body what relaxed feels like.`,

	"urge_surfing": `**Urge Surfing:**

Urges rise, peak, and fall like waves - they don't last forever.

1. Notice where you feel the urge in your body
2. Describe it to yourself without judging it ("tight chest, restless hands")
3. Breathe into that spot and watch the urge like a wave
4. Remind yourself: "This will crest and pass. I don't have to act on it."

Ride it out for a few minutes and notice what changes.`,
}

const learnMenuMessage = `**Learn about CBT concepts:**

1. CBT Basics
2. Thought-Feeling Connection
3. Cognitive Distortions
4. Why Behavioral Activation Works
5. How Exposure Works

Pick a number or topic.`

var learnTopics = []struct {
	id   string
	cues []string
}{
	{"cbt_basics", []string{"1", "cbt", "basic"}},
	{"thought_feeling_connection", []string{"2", "thought", "feeling"}},
	{"cognitive_distortions", []string{"3", "distortion"}},
	{"behavioral_activation_why", []string{"4", "activation"}},
	{"exposure_science", []string{"5", "exposure"}},
}

var learnCards = map[string]string{
	"cbt_basics": `**CBT Basics**

CBT (Cognitive Behavioral Therapy) rests on a simple idea: thoughts, feelings, and behaviors are connected. Change one, and the others shift too.

You can't always control what happens, but you can learn to notice your thoughts about it, test them against the evidence, and choose actions that serve you - even when motivation is low.`,

	"thought_feeling_connection": `**The Thought-Feeling Connection**

It's rarely the situation itself that creates the feeling - it's the thought about it. Two people in the same situation can feel completely differently because they're thinking different things.

That's good news: thoughts can be examined and updated, which gives you a handle on feelings that otherwise seem automatic.`,

	"cognitive_distortions": `**Cognitive Distortions**

Under stress, thinking gets systematically skewed. Common patterns:

- **All-or-nothing:** "If it's not perfect, it's a failure."
- **Catastrophizing:** jumping to the worst possible outcome.
- **Mind reading:** "They think I'm incompetent."
- **Should statements:** rigid rules that generate guilt.

Naming the distortion is half the work of loosening it.`,

	"behavioral_activation_why": `**Why Behavioral Activation Works**

Low mood says "wait until you feel like it." But avoidance shrinks your world and feeds the low mood.

Behavioral activation flips the order: action first, motivation follows. Small, scheduled, achievable activities rebuild the sense that your actions matter - which is exactly what low mood erodes.`,

	"exposure_science": `**How Exposure Works**

Avoiding a fear brings instant relief, which teaches your brain the fear was justified. Exposure breaks that loop: by facing the feared situation gradually and staying long enough for anxiety to fall on its own, your brain collects new evidence - "I predicted disaster; it didn't happen."

Done step by step, with each rung repeated until it's boring, fears lose their power.`,
}
