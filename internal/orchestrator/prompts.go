package orchestrator

const devotionalPrompt = `Generate a daily Christian devotional in %s. Include a Title, Scripture Reference, Message (approx 200 words), Application, and a closing Prayer. Return as JSON.`

const prayerPrompt = `A person is asking for prayer for: "%s". In %s, provide a compassionate biblical response, a relevant scripture with reference, and a powerful prayer. Return as JSON.`

const speechPrefix = "Say with deep compassion and peace: "

const qualityBoost = ", biblical masterpiece, hyper-photorealistic cinematic detail, epic lighting, sacred atmosphere, divine presence, extremely detailed textures, 8k resolution style, shot on 35mm lens, f/1.8, voluminous lighting, sharp focus"

const fallbackSuffix = ", cinematic, realistic biblical art"

const wisdomInstruction = `You are the Kingdom Intelligence Wisdom Assistant.
Mission: Provide 4K-level clarity on biblical and spiritual topics.
Absolute Requirement: You MUST ALWAYS include at least 5-7 specific scripture verses with their full text for every query.
Instructions:
- Format scriptures clearly in a separate block with a border or as bold citations.
- If explaining a book of the Bible like "Hebrews", provide a chapter-by-chapter breakdown and core theological themes.
- Use scholarly but accessible language.
- Ensure historical context is grounded in archaeological evidence where applicable.`

const mapPrompt = `Analyze the biblical, archaeological, and geographical significance of: %s. Provide active links to maps and historical data. Describe the location as it was in ancient times and as it is today.`

const documentPrompt = `The following text was extracted from a study document.

<document>
%s
</document>

%s`
