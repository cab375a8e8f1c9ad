// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"cmp"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
)

type Id int

const (
	PackageDirNotFoundId Id = iota + 1
	ManifestMissingId
	ManifestMalformedId
	TSConfigMissingId
	StrictConflictId
	TarballFailedId
	RulesConfigInvalidId
	CheckerCommandInvalidId
	ConfigLoadFailedId
	ExemptionListUnreadableId
	RegistryUnreachableId
	PermissionDeniedId
)

// DocsBaseURL is where the policy documentation lives.
const DocsBaseURL = "https://github.com/dtcheck/dtcheck/blob/main/docs/"

type MarkdownMsg string

type HttpLink string

type Renderer interface {
	Render(in string, stylePath string) (string, error)
}

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink  // every issue links to its documentation
	extLinks []HttpLink  // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Markdown returns the message followed by a "See also" list of links.
func (i *Issue) Markdown() string {
	var sb strings.Builder
	sb.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		sb.WriteString("\n\n## See also\n")
		for _, link := range slices.Concat(i.docLinks, i.extLinks) {
			sb.WriteString("- <" + string(link) + ">\n")
		}
	}
	return sb.String()
}

// Render renders the issue for a terminal. stylePath is a glamour style
// name ("dark", "light", "notty") or a JSON style file.
func (i *Issue) Render(stylePath string) (string, error) {
	return render(i.Markdown(), stylePath)
}

func doc(page string) HttpLink {
	return HttpLink(DocsBaseURL + page)
}

var (
	render = glamour.Render

	packageDirNotFoundIssue = &Issue{
		id: PackageDirNotFoundId,
		mdMsg: `
# Package directory not found!

dtcheck checks directories of declaration packages, such as ` + "`types/react`" + ` or
the version directory ` + "`types/react/v16`" + `.

## Things you can try:
- Check the path for typos
- Run dtcheck from the repository root:
~~~
$ dtcheck check types/left-pad
~~~`,
		docLinks: []HttpLink{doc("packages.md")},
	}

	manifestMissingIssue = &Issue{
		id: ManifestMissingId,
		mdMsg: `
# Missing package.json!

Every declaration package needs a ` + "`package.json`" + `. Nothing else about the package
can be checked without it.

## Minimal package.json:
~~~json
{
    "private": true,
    "name": "@types/left-pad",
    "version": "1.3.9999",
    "projects": ["https://github.com/left-pad/left-pad"],
    "devDependencies": { "@types/left-pad": "workspace:." },
    "owners": [{ "name": "Jane Doe", "githubUsername": "janedoe" }]
}
~~~`,
		docLinks: []HttpLink{doc("manifest.md")},
	}

	manifestMalformedIssue = &Issue{
		id: ManifestMalformedId,
		mdMsg: `
# package.json is not valid JSON!

The manifest must be a single JSON object. Comments and trailing commas are not allowed.

## Things you can try:
- Run the file through a JSON formatter to find the syntax error
- Compare it with the package.json of a neighbouring package`,
		docLinks: []HttpLink{doc("manifest.md")},
	}

	tsconfigMissingIssue = &Issue{
		id: TSConfigMissingId,
		mdMsg: `
# Missing tsconfig.json!

Every declaration package needs a ` + "`tsconfig.json`" + ` listing its files and the
required compiler options.

## Required settings:
~~~json
{
    "compilerOptions": {
        "module": "node16",
        "lib": ["es6"],
        "noImplicitAny": true,
        "noImplicitThis": true,
        "strictNullChecks": true,
        "strictFunctionTypes": true,
        "types": [],
        "noEmit": true,
        "forceConsistentCasingInFileNames": true
    },
    "files": ["index.d.ts", "left-pad-tests.ts"]
}
~~~`,
		docLinks: []HttpLink{doc("tsconfig.md")},
	}

	strictConflictIssue = &Issue{
		id: StrictConflictId,
		mdMsg: `
# Contradictory strictness settings!

` + "`\"strict\": true`" + ` already enables noImplicitAny, noImplicitThis, strictNullChecks
and strictFunctionTypes. Setting them as well is a configuration error, not a policy violation.

## Things you can try:
- Remove the individual flags and keep ` + "`\"strict\": true`" + `
- Or remove ` + "`\"strict\"`" + ` and list all four flags explicitly`,
		docLinks: []HttpLink{doc("tsconfig.md#strict")},
	}

	tarballFailedIssue = &Issue{
		id: TarballFailedId,
		mdMsg: `
# Could not build the package bundle!

The declaration package is packed into a tarball and merged with the npm package
before the type-correctness checker runs.

## Things you can try:
- Make sure every file in the package directory is readable
- Make sure package.json has a "name" field
- Remove symlinks pointing outside the package`,
		docLinks: []HttpLink{doc("compat.md")},
	}

	rulesConfigInvalidIssue = &Issue{
		id: RulesConfigInvalidId,
		mdMsg: `
# The checker rule config could not be read!

The rule config (` + "`attw.json`" + ` by default) lists packages that are expected to fail
and problem kinds that never fail a package:
~~~json
{
    "failingPackages": ["react/v16"],
    "ignoreRules": ["named-exports"]
}
~~~

## Things you can try:
- Check ` + "`checker.rules_path`" + ` in your dtcheck configuration
- Validate the file's JSON syntax`,
		docLinks: []HttpLink{doc("compat.md#rules")},
	}

	checkerCommandInvalidIssue = &Issue{
		id: CheckerCommandInvalidId,
		mdMsg: `
# The checker command is invalid!

` + "`checker.command`" + ` is split like a shell command line. The placeholder
` + "`{tarball}`" + ` is replaced with the path of the bundle to check.

## Example:
~~~cue
checker: command: "npx --yes @arethetypeswrong/cli --format json {tarball}"
~~~`,
		docLinks: []HttpLink{doc("configuration.md#checker")},
		extLinks: []HttpLink{"https://github.com/arethetypeswrong/arethetypeswrong.github.io"},
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

dtcheck reads config.cue or config.toml from its config directory, or dtcheck.cue or
dtcheck.toml from the working directory.

## Things you can try:
- Show where dtcheck looks:
~~~
$ dtcheck config path
~~~
- Write a file with every field and its default:
~~~
$ dtcheck config init
~~~`,
		docLinks: []HttpLink{doc("configuration.md")},
		extLinks: []HttpLink{"https://cuelang.org/docs/", "https://toml.io/"},
	}

	exemptionListUnreadableIssue = &Issue{
		id: ExemptionListUnreadableId,
		mdMsg: `
# The exemption list could not be read!

The exemption list holds one package identifier per line, such as ` + "`left-pad`" + ` or
` + "`react@v16`" + `. A missing file is treated as an empty list; any other read error is fatal.

## Things you can try:
- Check ` + "`exemptions_path`" + ` in your dtcheck configuration
- Check the file's permissions`,
		docLinks: []HttpLink{doc("registry.md#exemptions")},
	}

	registryUnreachableIssue = &Issue{
		id: RegistryUnreachableId,
		mdMsg: `
# The npm registry could not be reached!

Registry lookups are best-effort: a failed lookup is treated as "not found", which
can produce spurious errors about missing implementation packages.

## Things you can try:
- Check your network connection and proxy settings
- Point dtcheck at a mirror with ` + "`registry_url`" + `
- Skip the registry stage:
~~~
$ dtcheck check --skip-registry types/left-pad
~~~`,
		docLinks: []HttpLink{doc("registry.md")},
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied!

dtcheck could not read a file it needs.

## Things you can try:
- Check the permissions of the package directory
- Make sure the config and exemption files are readable by your user`,
		docLinks: []HttpLink{doc("troubleshooting.md")},
	}

	issues = map[Id]*Issue{
		packageDirNotFoundIssue.Id():      packageDirNotFoundIssue,
		manifestMissingIssue.Id():         manifestMissingIssue,
		manifestMalformedIssue.Id():       manifestMalformedIssue,
		tsconfigMissingIssue.Id():         tsconfigMissingIssue,
		strictConflictIssue.Id():          strictConflictIssue,
		tarballFailedIssue.Id():           tarballFailedIssue,
		rulesConfigInvalidIssue.Id():      rulesConfigInvalidIssue,
		checkerCommandInvalidIssue.Id():   checkerCommandInvalidIssue,
		configLoadFailedIssue.Id():        configLoadFailedIssue,
		exemptionListUnreadableIssue.Id(): exemptionListUnreadableIssue,
		registryUnreachableIssue.Id():     registryUnreachableIssue,
		permissionDeniedIssue.Id():        permissionDeniedIssue,
	}
)

// Values returns every issue ordered by Id.
func Values() []*Issue {
	return slices.SortedFunc(maps.Values(issues), func(a, b *Issue) int {
		return cmp.Compare(a.id, b.id)
	})
}

func Get(id Id) *Issue {
	return issues[id]
}
