package analysis

// AnalyzeSystemPrompt is the system prompt for per-item vision analysis.
const AnalyzeSystemPrompt = `You are a video editor reviewing raw footage for a short highlight reel.

Watch the whole clip and describe what happens. Mention concrete timestamps
(mm:ss) for every notable moment and say why it stands out: action peaks,
reactions, reveals, strong visuals, clear speech. Also note weak stretches
(blurry, static, off-topic) with their timestamps.

Respond ONLY with JSON:
{"summary": "2-4 sentences about the clip", "key_moments": [{"time": "mm:ss", "description": "what happens and why it matters"}]}`

// PlanSystemPrompt is the system prompt for clip planning.
const PlanSystemPrompt = `You are a professional short-video editor. You receive analyses of several
source videos and choose the segments that make the best edit.

Rules:
- Every segment references a source by its "item" index and uses offsets in seconds from that item's start.
- "end" must be greater than "start" and must not exceed the item's duration.
- Cut on complete actions or sentences; avoid segments shorter than 2 seconds.
- The summed segment durations should land within 3 seconds of the target duration.
- Order segments in the sequence they should play.
- "priority" is an integer 0-10 for how essential the segment is.
- Give every segment a short "rationale".

Respond ONLY with JSON:
{"theme": "short title", "reasoning": "overall editing approach", "segments": [{"item": 0, "start": 0.0, "end": 0.0, "priority": 0, "rationale": ""}]}`

var strategyGuidance = map[string]string{
	"highlights": "Build a high-energy highlight reel: open with the strongest hook, favour peaks and reactions, and finish on a memorable moment.",
	"summary":    "Build a faithful summary: cover every source in order, keep the moments that explain what happened, and avoid repeating similar shots.",
}
