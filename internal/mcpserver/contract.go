package mcpserver

// AuthoringContract describes the post conventions that LLM consumers
// must follow when drafting or editing posts.
const AuthoringContract = `# Ansuz Post Authoring Contract

Every blog post stored in Ansuz MUST follow this structure.

## File naming

` + "```" + `
content/blog/YYYY-MM-DD-slug.md      (or .markdown)
` + "```" + `

The date and slug in the filename ARE the post's identity. The permalink
is derived from them and nothing else:

` + "```" + `
2020-12-30-hello-world.md  ->  /blog/2020/12/30/hello-world/
` + "```" + `

## Structure

` + "```" + `markdown
---
title: Human-readable title         # REQUIRED
date: 2020-12-30                    # REQUIRED, must equal the filename date
slug: hello-world                   # OPTIONAL, must equal the filename slug if set
categories:                         # OPTIONAL
  - infrastructure
series:                             # OPTIONAL, groups posts into a series
  - debugging-war-stories
published: false                    # drafts carry published: false
---

Body text in standard Markdown.

Link to other posts with reference-style links, [like this][other-post].

[other-post]: {{< baseurl >}}/blog/2020/11/01/other-post/
` + "```" + `

TOML frontmatter between ` + "`" + `+++` + "`" + ` fences is also accepted.

## Rules

1. **Frontmatter is mandatory.** The opening fence must be the first line
   of the file.
2. **` + "`" + `title` + "`" + ` and ` + "`" + `date` + "`" + ` are required.** The date must match the filename.
3. **Slugs** are lowercase words joined by hyphens (` + "`" + `a-z` + "`" + `, ` + "`" + `0-9` + "`" + `, ` + "`" + `-` + "`" + ` only).
4. **The date and slug never change after publishing.** A published
   permalink is frozen forever; fix typos in the title, never in the slug.
5. **Cross-references** use reference-style links with the
   ` + "`" + `{{< baseurl >}}` + "`" + ` placeholder, never a hardcoded domain. Every
   reference must have a matching definition, and every internal target
   must resolve to a published post. Drafts are not valid targets.
6. **Content changes after publishing** get an update marker in the body:
   ` + "`" + `**Updated (YYYY-MM-DD):** what changed` + "`" + `, or an ` + "`" + `updated:` + "`" + ` field in the
   frontmatter.
7. **Publishing is one-way.** Flip ` + "`" + `published: false` + "`" + ` to ` + "`" + `true` + "`" + ` (or drop
   the field) once; never unpublish.
8. **Encoding** is UTF-8 with a trailing newline.

## Assets & Images

- Upload assets via the ` + "`" + `upload_asset` + "`" + ` tool. It returns a ` + "`" + `markdownImage` + "`" + `
  field ready to paste into the post body.
- Assets land under ` + "`" + `/assets/YYYY/MM/` + "`" + ` named after the upload month.
- Reference them with the absolute path: ` + "`" + `![description](/assets/2020/12/photo.png)` + "`" + `
- Supported formats: png, jpg, jpeg, gif, webp, svg, pdf.

## Example

` + "```" + `markdown
---
title: Debugging a Leaky Connection Pool
date: 2020-12-30
categories:
  - databases
series:
  - debugging-war-stories
---

We hit a wall last week when [the proxy][proxy-post] started timing out.

![Connection graph](/assets/2020/12/pool-graph.png)

**Updated (2021-01-04):** the fix landed upstream.

[proxy-post]: {{< baseurl >}}/blog/2020/11/12/proxy-timeouts/
` + "```" + `
`
