package main

const htmlContent = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>notemap</title>
    <style>
        body { margin: 0; font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; background: #f4f4f4; color: #222; height: 100vh; display: flex; flex-direction: column; overflow: hidden; }
        .tabs { display: flex; background: #e6e6e6; border-bottom: 1px solid #ccc; height: 34px; align-items: flex-end; padding-left: 8px; flex-shrink: 0; }
        .tab { padding: 6px 14px; cursor: pointer; font-size: 12px; color: #666; user-select: none; border-radius: 6px 6px 0 0; }
        .tab.active { background: #f4f4f4; color: #000; }
        .content { flex: 1; display: flex; }
        .pane { display: none; width: 100%; height: 100%; }
        .pane.active { display: block; }
        #log { font-family: Consolas, Monaco, monospace; font-size: 12px; padding: 10px; overflow-y: auto; white-space: pre-wrap; box-sizing: border-box; height: 100%; }
        #log .warn { color: #b26a00; }
        #log .err { color: #c62828; }
        #log .sys { color: #1565c0; font-weight: bold; }
        iframe { width: 100%; height: 100%; border: none; }
    </style>
</head>
<body>
    <div class="tabs">
        <div class="tab" id="tab-map" onclick="switchTab('map')">MAP</div>
        <div class="tab active" id="tab-log" onclick="switchTab('log')">LOG</div>
    </div>
    <div class="content">
        <div id="pane-map" class="pane"><iframe id="frame-map"></iframe></div>
        <div id="pane-log" class="pane active"><div id="log"></div></div>
    </div>
    <script>
        const output = document.getElementById('log');

        function switchTab(id) {
            document.querySelectorAll('.tab').forEach(t => t.classList.remove('active'));
            document.querySelectorAll('.pane').forEach(p => p.classList.remove('active'));
            document.getElementById('tab-' + id).classList.add('active');
            document.getElementById('pane-' + id).classList.add('active');
        }

        // Exposed to Go
        window.addLogLine = function(text) {
            const line = document.createElement('div');
            if (text.includes('WARN')) line.className = 'warn';
            else if (text.includes('ERROR') || text.includes('FAIL')) line.className = 'err';
            else if (text.startsWith('>')) line.className = 'sys';
            line.textContent = text;
            output.appendChild(line);
            output.scrollTop = output.scrollHeight;
        };

        window.enableApp = function(url) {
            document.getElementById('frame-map').src = url;
            switchTab('map');
        };
    </script>
</body>
</html>
`
