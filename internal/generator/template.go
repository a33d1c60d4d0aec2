package generator

import (
	"fmt"
	"strings"

	"github.com/kalambet/wpbatch/internal/post"
)

// finalCTAMarker tags the closing call-to-action link. Its presence means
// the model wrote the article to the end even if it dropped [/CONTENT].
const finalCTAMarker = `data-cta="final"`

// Template is a color scheme threaded through one generation call.
type Template struct {
	Name         string
	H2Gradient   string
	H3Color      string
	CTAGradient  string
	CTATextColor string
}

// Templates is the palette a template is picked from.
var Templates = []Template{
	{"blue-gray", "linear-gradient(to right, #1a73e8, #004d99)", "#1a73e8", "linear-gradient(135deg, #FF6B35, #F7931E, #FFD23F)", "#FFFFFF"},
	{"green-orange", "linear-gradient(to right, #28a745, #1e7e34)", "#28a745", "linear-gradient(135deg, #FF5722, #FF7043, #FFAB40)", "#FFFFFF"},
	{"purple-yellow", "linear-gradient(to right, #6a1b9a, #4a148c)", "#6a1b9a", "linear-gradient(135deg, #FFC107, #FFD54F, #FFEB3B)", "#333333"},
	{"teal-pink", "linear-gradient(to right, #00796b, #004d40)", "#00796b", "linear-gradient(135deg, #E91E63, #F06292, #FF80AB)", "#FFFFFF"},
	{"terracotta", "linear-gradient(to right, #a0522d, #8b4513)", "#8b4513", "linear-gradient(135deg, #00BCD4, #26C6DA, #4DD0E1)", "#FFFFFF"},
	{"classic-blue", "linear-gradient(to right, #1a73e8, #004d99)", "#004d99", "linear-gradient(135deg, #FF9800, #FFB74D, #FFCC80)", "#333333"},
	{"nature-green", "linear-gradient(to right, #28a745, #1e7e34)", "#1e7e34", "linear-gradient(135deg, #E91E63, #EC407A, #F48FB1)", "#FFFFFF"},
	{"royal-purple", "linear-gradient(to right, #6a1b9a, #4a148c)", "#4a148c", "linear-gradient(135deg, #CDDC39, #D4E157, #E6EE9C)", "#333333"},
	{"future-teal", "linear-gradient(to right, #00796b, #004d40)", "#004d40", "linear-gradient(135deg, #FF5252, #FF8A80, #FFCDD2)", "#FFFFFF"},
	{"earth-terracotta", "linear-gradient(to right, #a0522d, #8b4513)", "#8b4513", "linear-gradient(135deg, #03A9F4, #29B6F6, #81D4FA)", "#FFFFFF"},
}

func (t Template) ctaStyle(padding string) string {
	return fmt.Sprintf("display:block !important; text-align:center !important; padding:%s !important; "+
		"background:%s !important; color:%s !important; text-decoration:none !important; "+
		"border-radius:50px !important; font-weight:800 !important; margin:30px 0 !important;",
		padding, t.CTAGradient, t.CTATextColor)
}

// closingCTA is appended when auto-complete finishes a truncated article.
func (t Template) closingCTA() string {
	return `<p style="margin:40px 0 20px 0 !important; text-align:center !important; color:#666 !important; line-height:1.8 !important;">` +
		"That is how it went for me. Give it a try yourself!</p>\n" +
		`<a href="javascript:void(0)" ` + finalCTAMarker + ` style="` + t.ctaStyle("26px 52px") + `">Get started now</a>`
}

func systemInstruction(custom string, t Template) string {
	var b strings.Builder
	b.WriteString("You write blog articles from first-hand experience, in the language of the topic.\n\n")
	b.WriteString("Always finish the article and close it with the [/CONTENT] tag. If you are running out of room, write fewer sections rather than stopping mid-article.\n\n")
	if custom = strings.TrimSpace(custom); custom != "" {
		fmt.Fprintf(&b, "Additional instructions from the site owner:\n%s\n\n", custom)
	}
	b.WriteString("Rules:\n")
	b.WriteString("- Use HTML only, never Markdown. Emphasis is <strong> or <em>.\n")
	b.WriteString("- No self-introduction, no summary section, no FAQ.\n")
	b.WriteString("- Links must point to real official pages. Never use href=\"#\" or example.com. When unsure, link a Google search for the keyword.\n")
	b.WriteString("- Avoid time-relative phrases unless the topic names a year.\n\n")

	fmt.Fprintf(&b, "Theme %q. Every inline style must carry !important.\n", t.Name)
	fmt.Fprintf(&b, `H2: <h2 style="background:%s !important; color:#fff !important; padding:18px 24px !important; border-radius:12px !important; font-size:24px !important; font-weight:800 !important;">`+"\n", t.H2Gradient)
	fmt.Fprintf(&b, `H3: <h3 style="color:%s !important; font-size:20px !important; font-weight:700 !important; padding-left:16px !important; border-left:4px solid %s !important;">`+"\n", t.H3Color, t.H3Color)
	fmt.Fprintf(&b, `Links: <a href="URL" style="color:%s !important; font-weight:700 !important; text-decoration:underline !important;">`+"\n", t.H3Color)
	fmt.Fprintf(&b, `Call-to-action: <a href="javascript:void(0)" style="%s">`+"\n", t.ctaStyle("22px 44px"))
	fmt.Fprintf(&b, `Final call-to-action (required, last element): <a href="javascript:void(0)" %s style="%s">`+"\n\n", finalCTAMarker, t.ctaStyle("26px 52px"))

	b.WriteString("Use 4-5 H2 sections with two H3s each, and a closing H2 section before the final call-to-action.\n")
	b.WriteString("Place [AD1] right before the first H2 and [AD2] right before the second H2.\n\n")

	b.WriteString("Output exactly these sections:\n")
	b.WriteString("[TITLE]the title given by the user, unchanged[/TITLE]\n")
	b.WriteString("[EXCERPT]a plain-text meta description of about 150 characters that mentions the keyword once[/EXCERPT]\n")
	b.WriteString("[THUMBNAIL_TEXT]the core message of the title in at most 20 characters, ending with '!'[/THUMBNAIL_TEXT]\n")
	b.WriteString("[CONTENT]the HTML body[/CONTENT]\n")
	return b.String()
}

func userPrompt(topic post.Topic, t Template) string {
	return fmt.Sprintf("Topic: %s\nKeyword: %s\n\n"+
		"Write the article in the %q theme. Use the topic verbatim in [TITLE]. "+
		"Write three calls-to-action with different wording that fits the topic. "+
		"Keep the thumbnail text under 20 characters. "+
		"Finish with the final call-to-action and [/CONTENT].",
		topic.Title, topic.Keyword, t.Name)
}
