package runtime

// shStartupScript is written into every new runtime's ShStartupFile, and
// sourced by bourne-compatible shells entering the runtime.
const shStartupScript = `#!/usr/bin/env sh
if [ -f ~/.bashrc ]; then
    . ~/.bashrc || true
fi
startup_dir="/spfs/etc/spfs/startup.d"
if [ -d "${startup_dir}" ]; then
    filenames=$(/bin/ls "$startup_dir" | grep '\.sh$')
    if [ -n "$filenames" ]; then
        for file in $filenames; do
            [ -z "$SPFS_DEBUG" ] || echo source "$startup_dir/$file" 1>&2
            . "$startup_dir/$file" || true
        done
    fi
fi

if [ "$#" -ne 0 ]; then
    "$@"
    exit $?
fi

echo "* You are now in a configured subshell shell *" 1>&2
`

// cshStartupScript is written into every new runtime's CshStartupFile, and
// sourced by c-shell-compatible shells entering the runtime.
const cshStartupScript = `#!/usr/bin/env csh
if ( -f ~/.tcshrc ) then
    source ~/.tcshrc || true
else if ( -f ~/.cshrc ) then
    source ~/.cshrc || true
endif

set startup_dir="/spfs/etc/spfs/startup.d"
if ( -d "${startup_dir}" != 0 ) then
    set filenames=` + "`" + `/bin/ls $startup_dir | grep '\.csh\s*$'` + "`" + `
    if ( "$filenames" != "" ) then
        foreach file ($filenames)
            if ( $?SPFS_DEBUG ) then
                /bin/sh -c "echo source ${startup_dir}/$file 1>&2"
            endif
            source ${startup_dir}/$file || true
        end
    endif
endif

if ( "$#argv" != 0 ) then
    $argv:q
    exit $?
endif

/bin/sh -c "echo '* You are now in an spfs-configured shell *' 1>&2"
`
