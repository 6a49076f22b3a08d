package inspect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const psFixture = `USER       PID  %CPU %MEM      VSZ    RSS TTY   STAT START   TIME COMMAND
root         1   0.0  0.1   167900  11804 ?     Ss   09:12   0:02 /sbin/init splash
alice     2345   1.2  3.4  4123456 280000 ?     Sl   09:20   1:05 /opt/Claude/claude-desktop --type=renderer
alice     bad    0.0  0.0        0      0 ?     S    09:20   0:00 broken
short line
`

func TestParsePS(t *testing.T) {
	procs := ParsePS(psFixture)
	require.Len(t, procs, 2)

	assert.Equal(t, 1, procs[0].PID)
	assert.Equal(t, "/sbin/init", procs[0].Name)
	assert.Equal(t, "root", procs[0].User)

	assert.Equal(t, 2345, procs[1].PID)
	assert.Equal(t, "/opt/Claude/claude-desktop", procs[1].Name)
	assert.Equal(t, "/opt/Claude/claude-desktop --type=renderer", procs[1].Command)

	assert.Empty(t, ParsePS(""))
}

const tasklistVerbose = `"Image Name","PID","Session Name","Session#","Mem Usage","Status","User Name","CPU Time","Window Title"
"explorer.exe","4120","Console","1","98,432 K","Running","PC\alice","0:00:41","Program Manager"
"cluely.exe","8812","Console","1","150,220 K","Running","PC\alice","0:00:03","N/A"
"copilot-helper.exe","9001","Console","1","20,100 K","Unknown","PC\alice","0:00:00","Hidden Window"
`

func TestParseTasklist(t *testing.T) {
	procs := ParseTasklist(tasklistVerbose)
	require.Len(t, procs, 3)

	assert.Equal(t, "explorer.exe", procs[0].Name)
	assert.Equal(t, 4120, procs[0].PID)
	assert.Equal(t, "Program Manager", procs[0].Window)
	assert.Equal(t, `PC\alice`, procs[0].User)

	assert.False(t, WindowHidden(procs[0].Window))
	assert.True(t, WindowHidden(procs[1].Window))
	assert.True(t, WindowHidden(procs[2].Window))
}

func TestParseTasklistBrief(t *testing.T) {
	out := "\"Image Name\",\"PID\",\"Session Name\",\"Session#\",\"Mem Usage\"\r\n" +
		"\"svchost.exe\",\"912\",\"Services\",\"0\",\"12,000 K\"\r\n"
	procs := ParseTasklist(out)
	require.Len(t, procs, 1)
	assert.Equal(t, "svchost.exe", procs[0].Name)
	assert.Equal(t, 912, procs[0].PID)
	assert.Empty(t, procs[0].Window)
}

func TestParseNetstat(t *testing.T) {
	linux := `Active Internet connections (servers and established)
Proto Recv-Q Send-Q Local Address           Foreign Address         State
tcp        0      0 127.0.0.1:631           0.0.0.0:*               LISTEN
tcp        0      0 192.168.1.10:51234      104.18.32.47:443        ESTABLISHED
udp        0      0 0.0.0.0:5353            0.0.0.0:*
Active UNIX domain sockets (servers and established)
unix  2      [ ACC ]     STREAM     LISTENING     23456    /run/user/1000/bus
`
	conns := ParseNetstat(linux)
	require.Len(t, conns, 3)
	assert.Equal(t, Connection{Proto: "tcp", Local: "127.0.0.1:631", Remote: "0.0.0.0:*", State: "LISTEN"}, conns[0])
	assert.Equal(t, "104.18.32.47:443", conns[1].Remote)
	assert.Equal(t, "ESTABLISHED", conns[1].State)
	assert.Equal(t, "udp", conns[2].Proto)
	assert.Empty(t, conns[2].State)

	windows := `
Active Connections

  Proto  Local Address          Foreign Address        State
  TCP    0.0.0.0:135            0.0.0.0:0              LISTENING
  TCP    10.0.0.5:50123         20.42.65.92:443        ESTABLISHED
  UDP    0.0.0.0:500            *:*
`
	conns = ParseNetstat(windows)
	require.Len(t, conns, 3)
	assert.Equal(t, Connection{Proto: "tcp", Local: "10.0.0.5:50123", Remote: "20.42.65.92:443", State: "ESTABLISHED"}, conns[1])
	assert.Equal(t, "*:*", conns[2].Remote)

	darwin := `Active Internet connections (including servers)
Proto Recv-Q Send-Q  Local Address          Foreign Address        (state)
tcp4       0      0  192.168.1.5.52345      17.57.146.5.443        ESTABLISHED
`
	conns = ParseNetstat(darwin)
	require.Len(t, conns, 1)
	assert.Equal(t, "tcp4", conns[0].Proto)
	assert.Equal(t, "17.57.146.5.443", conns[0].Remote)
}

func TestRemoteHost(t *testing.T) {
	tests := map[string]string{
		"104.18.32.47:443":     "104.18.32.47",
		"17.57.146.5.443":      "17.57.146.5",
		"[2606:4700::1]:443":   "2606:4700::1",
		"::ffff:10.0.0.1:443":  "::ffff:10.0.0.1",
		"fe80::1.631":          "fe80::1",
		"*.*":                  "*.*",
		"api.openai.com:https": "api.openai.com",
	}
	for in, want := range tests {
		assert.Equal(t, want, RemoteHost(in), in)
	}
}

func TestParseVisibleApps(t *testing.T) {
	got := ParseVisibleApps("Finder, Safari, Terminal\n")
	assert.Equal(t, []string{"Finder", "Safari", "Terminal"}, got)
	assert.Empty(t, ParseVisibleApps("\n"))
}

func TestHiddenByName(t *testing.T) {
	procs := []Process{
		{PID: 1, Name: "/Applications/Claude.app/Contents/MacOS/Claude"},
		{PID: 2, Name: "/Applications/Cluely.app/Contents/MacOS/Cluely"},
		{PID: 3, Name: "/Applications/Cluely.app/Contents/MacOS/Cluely"},
		{PID: 4, Name: "Finder"},
	}
	hidden := hiddenByName(procs, []string{"Claude", "Finder"})
	assert.Equal(t, []string{"/Applications/Cluely.app/Contents/MacOS/Cluely"}, hidden)
}

func TestParseWmctrlAndHiddenByPID(t *testing.T) {
	out := "0x03a00003  0 2345   host Claude\n0x04000001 -1 0      host Desktop\n"
	windowed := ParseWmctrl(out)
	assert.Equal(t, map[int]bool{2345: true}, windowed)

	procs := []Process{
		{PID: 2345, Name: "claude-desktop"},
		{PID: 2400, Name: "cluely"},
		{PID: 2401, Name: "cluely"},
	}
	assert.Equal(t, []string{"cluely"}, hiddenByPID(procs, windowed))
}

func TestParseMaps(t *testing.T) {
	maps := `55d0c0a00000-55d0c0a21000 r--p 00000000 08:02 1311 /usr/bin/cat
7ffd1a1f0000-7ffd1a211000 rw-p 00000000 00:00 0                          [stack]
7ffd1a3e9000-7ffd1a3ed000 r--p 00000000 00:00 0                          [vvar]
ffffffffff600000-ffffffffff601000 --xp 00000000 00:00 0                  [vsyscall]
garbage
`
	regions := ParseMaps(maps)
	require.Len(t, regions, 4)
	assert.Equal(t, uint64(0x55d0c0a00000), regions[0].Start)
	assert.Equal(t, "/usr/bin/cat", regions[0].Path)
	assert.True(t, regions[1].Readable())
	assert.Equal(t, "[stack]", regions[1].Path)
	assert.False(t, regions[3].Readable())
}
