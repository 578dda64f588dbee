// CLAUDE:SUMMARY Semantic field kinds and their ordered synonym table; table order is the classification tie-break.
package classify

// Kind is the semantic category of a form control. Values equal the
// profile keys they are filled from.
type Kind string

const (
	FirstName        Kind = "firstName"
	LastName         Kind = "lastName"
	Email            Kind = "email"
	Phone            Kind = "phone"
	LinkedIn         Kind = "linkedin"
	Portfolio        Kind = "portfolio"
	Resume           Kind = "resume"
	CoverLetter      Kind = "coverLetter"
	School           Kind = "school"
	Degree           Kind = "degree"
	Company          Kind = "company"
	Title            Kind = "title"
	StartDate        Kind = "startDate"
	EndDate          Kind = "endDate"
	Location         Kind = "location"
	Description      Kind = "description"
	Gender           Kind = "gender"
	Race             Kind = "race"
	VeteranStatus    Kind = "veteranStatus"
	DisabilityStatus Kind = "disabilityStatus"
	Unknown          Kind = "unknown"
)

// Synonyms is one row of the classification table.
type Synonyms struct {
	Kind     Kind
	Keywords []string
}

// Table is the default classification table. Order matters: the first
// kind with a keyword contained in any attribute wins.
var Table = []Synonyms{
	{FirstName, []string{"first name", "firstname", "fname", "given name"}},
	{LastName, []string{"last name", "lastname", "lname", "surname", "family name"}},
	{Email, []string{"email", "e-mail"}},
	{Phone, []string{"phone", "mobile", "cell", "contact number"}},
	{LinkedIn, []string{"linkedin", "linked in"}},
	{Portfolio, []string{"portfolio", "website", "personal site", "github"}},
	{Resume, []string{"resume", "résumé", "cv", "curriculum vitae"}},
	{CoverLetter, []string{"cover letter", "coverletter"}},
	{School, []string{"school", "university", "institution", "college"}},
	{Degree, []string{"degree", "qualification"}},
	{Company, []string{"company", "employer", "organization"}},
	{Title, []string{"job title", "current title", "position title"}},
	{StartDate, []string{"start date", "date started", "start month", "start year"}},
	{EndDate, []string{"end date", "date ended", "end month", "end year"}},
	{Gender, []string{"gender", "sex"}},
	{Race, []string{"race", "ethnicity", "hispanic", "latino"}},
	{VeteranStatus, []string{"veteran"}},
	{DisabilityStatus, []string{"disability", "disabled"}},
	{Location, []string{"location", "city", "address"}},
	{Description, []string{"description", "responsibilities", "summary"}},
}

// IsDemographic reports whether k is a voluntary self-identification kind.
func (k Kind) IsDemographic() bool {
	switch k {
	case Gender, Race, VeteranStatus, DisabilityStatus:
		return true
	}
	return false
}
