package generator

// resolverText binds every symbol once. The state enum starts unresolved
// and settles on available or unavailable for the life of the process.
const resolverText = `// Library handle
typedef enum {
    {{.Tag}}_unresolved = -1,
    {{.Tag}}_unavailable = 0,
    {{.Tag}}_available = 1
} {{.Tag}}_state_t;

static const char {{.Tag}}_soname[] = {{.Soname}};
static void *{{.Tag}}_handle = NULL;
static {{.Tag}}_state_t {{.Tag}}_state = {{.Tag}}_unresolved;
static pthread_once_t {{.Tag}}_once = PTHREAD_ONCE_INIT;

static void {{.Tag}}_resolve(void) {
    char exe_path[PATH_MAX];
    ssize_t len = readlink("/proc/self/exe", exe_path, sizeof(exe_path) - 1);
    if (len == -1) {
        fprintf(stderr, "%s: failed to read executable path\n", {{.Tag}}_soname);
        {{.Tag}}_state = {{.Tag}}_unavailable;
        return;
    }
    exe_path[len] = '\0';
    char *last_slash = strrchr(exe_path, '/');
    if (!last_slash || (size_t)(last_slash + 1 - exe_path) + sizeof({{.Tag}}_soname) > sizeof(exe_path)) {
        fprintf(stderr, "%s: cannot locate library beside %s\n", {{.Tag}}_soname, exe_path);
        {{.Tag}}_state = {{.Tag}}_unavailable;
        return;
    }
    strcpy(last_slash + 1, {{.Tag}}_soname);
    {{.Tag}}_handle = dlopen(exe_path, RTLD_LAZY);
    if (!{{.Tag}}_handle) {
        fprintf(stderr, "Failed to load %s: %s\n", {{.Tag}}_soname, dlerror());
        {{.Tag}}_state = {{.Tag}}_unavailable;
        return;
    }
{{- if .Table}}
    struct {{.Tag}}_symbols syms = {0};
{{- end}}
{{- range .Functions}}
    {{if $.Table}}syms.{{end}}{{.Name}} = ({{.Name}}_func)dlsym({{$.Tag}}_handle, "{{.Name}}");
    if (!{{if $.Table}}syms.{{end}}{{.Name}}) {
        fprintf(stderr, "%s: missing symbol %s\n", {{$.Tag}}_soname, "{{.Name}}");
        goto fail;
    }
{{- end}}
{{- if .Table}}
    {{.Tag}}_table = syms;
{{- end}}
    {{.Tag}}_state = {{.Tag}}_available;
    return;
{{- if .Functions}}

fail:
{{- if not .Table}}
{{- range .Functions}}
    {{.Name}} = NULL;
{{- end}}
{{- end}}
    dlclose({{.Tag}}_handle);
    {{.Tag}}_handle = NULL;
    {{.Tag}}_state = {{.Tag}}_unavailable;
{{- end}}
}

int is_{{.Tag}}_available(void) {
    pthread_once(&{{.Tag}}_once, {{.Tag}}_resolve);
    return {{.Tag}}_state == {{.Tag}}_available;
}
{{- if .Table}}

const struct {{.Tag}}_symbols *{{.Tag}}_symbols_table(void) {
    return is_{{.Tag}}_available() ? &{{.Tag}}_table : NULL;
}
{{- end}}

`

const headerText = `#ifndef {{.Guard}}
#define {{.Guard}}

#include <stddef.h>
#include <stdint.h>

#ifdef __cplusplus
extern "C" {
#endif

int is_{{.Tag}}_available(void);
{{- if .Table}}
{{if .Functions}}{{range .Functions}}
typedef {{.Return}} (*{{.Name}}_func)({{join .Types ", "}});
{{- end}}
{{end}}
struct {{.Tag}}_symbols {
{{- range .Functions}}
    {{.Name}}_func {{.Name}};
{{- else}}
    char none;
{{- end}}
};

const struct {{.Tag}}_symbols *{{.Tag}}_symbols_table(void);
{{- end}}
{{- if .Functions}}
{{range .Functions}}
{{.Return}} {{.Name}}_wrap({{join .Decls ", "}});
{{- end}}
{{- end}}

#ifdef __cplusplus
}
#endif

#endif
`
