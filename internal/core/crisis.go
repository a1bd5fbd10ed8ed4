package core

import (
	"fmt"
	"strings"
)

// defaultCountry is the fallback for unknown or missing country codes.
const defaultCountry = "US"

// crisisResources maps ISO-ish country codes to localized resource lists.
// The text is shown verbatim to the patient and injected into the adaptive
// prompt so generation can never substitute another country's numbers.
var crisisResources = map[string]string{
	"US": `**US Crisis Resources:**
- **988 Suicide & Crisis Lifeline:** Call or text 988
- **Crisis Text Line:** Text "HELLO" to 741741
- **Emergency Services:** 911`,
	"UK": `**UK Crisis Resources:**
- **Samaritans:** 116 123 (24/7)
- **Crisis Text Line:** Text "SHOUT" to 85258
- **Emergency Services:** 999`,
	"IT": `**Risorse di Crisi Italia:**
- **Telefono Amico Italia:** 800 86 00 22 (gratuito, 24/7)
- **Telefono Azzurro:** 19696
- **WhatsApp Telefono Amico:** 324 011 72 52
- **Emergenze:** 112`,
	"DE": `**Deutsche Krisenressourcen:**
- **Telefonseelsorge:** 0800 111 0 111 (kostenlos, 24/7)
- **Kinder & Jugendliche:** 116 111
- **Notruf:** 112`,
	"FR": `**Ressources de Crise France:**
- **SOS Amitié:** 09 72 39 40 50
- **Fil Santé Jeunes:** 0 800 235 236
- **Urgences:** 15 ou 112`,
	"ES": `**Recursos de Crisis España:**
- **Teléfono de la Esperanza:** 717 003 717
- **Emergencias:** 112`,
	"CH": `**Schweizer Krisenressourcen:**
- **Die Dargebotene Hand:** 143
- **Pro Juventute (Jugendliche):** 147
- **Notruf:** 112`,
	"AT": `**Österreichische Krisenressourcen:**
- **Telefonseelsorge:** 142 (24/7)
- **Rat auf Draht (Jugendliche):** 147
- **Notruf:** 112`,
	"NL": `**Nederlandse Crisislijnen:**
- **113 Zelfmoordpreventie:** 113 of 0800-0113
- **Chat:** 113.nl
- **Noodnummer:** 112`,
	"BE": `**Belgische Crisisdiensten:**
- **Zelfmoordlijn:** 1813
- **Centre de Prévention du Suicide:** 0800 32 123
- **Noodnummer:** 112`,
}

var emergencyNumbers = map[string]string{
	"US": "911",
	"UK": "999",
	"IT": "112",
	"DE": "112",
	"FR": "15 ou 112",
	"ES": "112",
	"CH": "112",
	"AT": "112",
	"NL": "112",
	"BE": "112",
}

// CrisisProtocol builds the deterministic terminal response for high-risk
// turns. It has no dependencies and performs no I/O.
type CrisisProtocol struct{}

func NewCrisisProtocol() *CrisisProtocol { return &CrisisProtocol{} }

// Resources returns the localized crisis resource block for a country code,
// falling back to the US entry for unknown codes.
func (p *CrisisProtocol) Resources(countryCode string) string {
	if r, ok := crisisResources[normalizeCountry(countryCode)]; ok {
		return r
	}
	return crisisResources[defaultCountry]
}

// EmergencyNumber returns the primary emergency number for a country code.
func (p *CrisisProtocol) EmergencyNumber(countryCode string) string {
	if n, ok := emergencyNumbers[normalizeCountry(countryCode)]; ok {
		return n
	}
	return emergencyNumbers[defaultCountry]
}

// BuildCrisisResponse produces the fixed-structure crisis message:
// acknowledgment, non-capability statement, localized resources, emergency
// number, and the session-pause statement. Always paired with session
// termination by the caller.
func (p *CrisisProtocol) BuildCrisisResponse(countryCode string) (text, resources, emergencyNumber string) {
	resources = p.Resources(countryCode)
	emergencyNumber = p.EmergencyNumber(countryCode)

	text = fmt.Sprintf(`I'm really concerned about what you've shared. Your safety is the most important thing right now.

**I need you to know:**
- I'm not equipped to handle crisis situations
- You need immediate support from trained professionals
- This is not something to handle alone

**Please contact one of these resources right now:**

%s

If you're in immediate danger, please call emergency services (%s) or go to your nearest emergency room.

If you have a therapist, please reach out to them as soon as possible.

I'm going to pause our session here because your safety comes first. This is the right step.`, resources, emergencyNumber)
	return text, resources, emergencyNumber
}

func normalizeCountry(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return defaultCountry
	}
	return code
}
